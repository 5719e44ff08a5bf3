package service

import (
	"errors"
	"fmt"

	"corrplot-backend/internal/model"
)

var (
	ErrMissingParameter = model.ErrMissingParameter
	ErrInvalidParameter = model.ErrInvalidParameter
	ErrInvocationFailed = errors.New("simulation invocation failed")
	ErrResultNotFound   = errors.New("simulation result file not found")
	ErrAmbiguousResult  = errors.New("simulation produced more than one result file")
	ErrInvalidResult    = errors.New("simulation result could not be parsed")
)

// 模拟流程中出错的阶段
const (
	StageParams  = "params"
	StageInvoke  = "invoke"
	StageLocate  = "locate"
	StageLoad    = "load"
	StagePersist = "persist"
)

// SimulationError 携带出错的缓存 key 和阶段
type SimulationError struct {
	Key   string
	Stage string
	Err   error
}

func (e *SimulationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("simulation %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("simulation %s [%s]: %v", e.Stage, e.Key, e.Err)
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}
