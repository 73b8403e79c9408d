package analytics

import "sync"

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"
const NOOP_DATA_COLLECTOR DataCollectorType = "NOOP_DATA_COLLECTOR"

// StepDataCollector records the outcome of every handler run on an
// ActionSet step.
type StepDataCollector interface {
	RecordStepSuccess(actionSetName string, actionSetId string, actionName string, actionIdx int, status string)
	RecordStepFailure(actionSetName string, actionSetId string, actionName string, actionIdx int, reason string)
	Close() error
}

var (
	mu            sync.RWMutex
	stepCollector StepDataCollector = noopDataCollector{}
)

func InitDataCollector(config DataCollectorConfig) error {
	var c StepDataCollector
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		fc, err := NewLogFileDataCollector(config.FileName)
		if err != nil {
			return err
		}
		c = fc
	default:
		c = noopDataCollector{}
	}
	SetDataCollector(c)
	return nil
}

func SetDataCollector(c StepDataCollector) {
	mu.Lock()
	defer mu.Unlock()
	stepCollector = c
}

func collector() StepDataCollector {
	mu.RLock()
	defer mu.RUnlock()
	return stepCollector
}

func RecordStepSuccess(actionSetName string, actionSetId string, actionName string, actionIdx int, status string) {
	collector().RecordStepSuccess(actionSetName, actionSetId, actionName, actionIdx, status)
}

func RecordStepFailure(actionSetName string, actionSetId string, actionName string, actionIdx int, reason string) {
	collector().RecordStepFailure(actionSetName, actionSetId, actionName, actionIdx, reason)
}

func Close() error {
	return collector().Close()
}

type noopDataCollector struct{}

func (noopDataCollector) RecordStepSuccess(string, string, string, int, string) {}
func (noopDataCollector) RecordStepFailure(string, string, string, int, string) {}
func (noopDataCollector) Close() error                                       { return nil }
