package analytics

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Collector receives step outcomes for audit and reporting. The engine
// calls it on every action execution.
type Collector interface {
	RecordStepSuccess(workflowId string, enrollmentId string, stepId string, actionName string, result map[string]any)
	RecordStepFailure(workflowId string, enrollmentId string, stepId string, actionName string, reason string)
}

type NoopCollector struct{}

func (NoopCollector) RecordStepSuccess(workflowId string, enrollmentId string, stepId string, actionName string, result map[string]any) {
}

func (NoopCollector) RecordStepFailure(workflowId string, enrollmentId string, stepId string, actionName string, reason string) {
}

type LogFileCollector struct {
	fileName string
	logger   *zap.Logger
}

func NewLogFileCollector(fileName string) (*LogFileCollector, error) {
	enccoderConfig := zap.NewProductionEncoderConfig()
	enccoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	enccoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(enccoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	writer := zapcore.AddSync(logFile)
	core := zapcore.NewTee(zapcore.NewCore(fileEncoder, writer, zapcore.InfoLevel))
	return &LogFileCollector{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func (lc *LogFileCollector) RecordStepSuccess(workflowId string, enrollmentId string, stepId string, actionName string, result map[string]any) {
	lc.logger.Info("success", zap.String("workflow", workflowId), zap.String("enrollment", enrollmentId), zap.String("step", stepId), zap.String("action", actionName), zap.Any("result", result))
}

func (lc *LogFileCollector) RecordStepFailure(workflowId string, enrollmentId string, stepId string, actionName string, reason string) {
	lc.logger.Info("failure", zap.String("workflow", workflowId), zap.String("enrollment", enrollmentId), zap.String("step", stepId), zap.String("action", actionName), zap.String("reason", reason))
}
