package model

type ExecutionStatus string

const NEW ExecutionStatus = "NEW"
const RUNNING ExecutionStatus = "RUNNING"
const SUCCESS ExecutionStatus = "SUCCESS"
const FAILED ExecutionStatus = "FAILED"
const ERROR ExecutionStatus = "ERROR"

func (s ExecutionStatus) IsFinal() bool {
	switch s {
	case SUCCESS, FAILED, ERROR:
		return true
	}
	return false
}

func (s ExecutionStatus) String() string {
	return string(s)
}
