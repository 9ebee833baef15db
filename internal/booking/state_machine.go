package booking

import (
	"fmt"
	"time"
)

// AllowTransition 定义预约状态机的允许流转关系。
var AllowTransition = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	// 终态：不允许从 COMPLETED / CANCELLED 再流转
	StatusCompleted: {},
	StatusCancelled: {},
}

// stageOrder 工单阶段的推进顺序（只进不退）。
var stageOrder = []JobStage{
	StageInspection,
	StageDiagnosis,
	StageRepair,
	StageTesting,
	StageCompletion,
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition 对预约应用状态变更，并维护关键时间字段。
func ApplyTransition(b *Booking, to Status, now time.Time) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}
	from := b.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid booking status transition: %s -> %s", from, to)
	}

	b.Status = to

	switch to {
	case StatusCompleted:
		if b.CompletedAt == nil {
			t := now
			b.CompletedAt = &t
		}
	case StatusCancelled:
		if b.CancelledAt == nil {
			t := now
			b.CancelledAt = &t
		}
	}
	return nil
}

// CanAdvanceStage 判断工单阶段 from -> to 是否是顺序推进（允许跳阶，不允许回退）。
func CanAdvanceStage(from, to JobStage) bool {
	if from == to {
		return true
	}
	fi, ti := stageIndex(from), stageIndex(to)
	if fi < 0 || ti < 0 {
		return false
	}
	return ti > fi
}

func stageIndex(s JobStage) int {
	for i, v := range stageOrder {
		if v == s {
			return i
		}
	}
	return -1
}
