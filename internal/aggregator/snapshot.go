package aggregator

import (
	"encoding/json"
	"maps"

	"shelter-api/internal/facility"
	"shelter-api/internal/geo"
	"shelter-api/internal/routing"
)

// State 聚合轮次状态
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateSuperseded:
		return "superseded"
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Terminal 轮次是否已结束（完成或被取代）
func (s State) Terminal() bool { return s == StateCompleted || s == StateSuperseded }

// FailureKind 单个候选的失败类别
type FailureKind string

const (
	FailureUnreachable FailureKind = "unreachable"
	FailureProvider    FailureKind = "provider_error"
)

// 文档注释：单个候选的结果
// 约束：Result 与 Failure 恰有其一；不会出现部分或非法数值。
type Outcome struct {
	Result  *routing.RouteResult `json:"result,omitempty"`
	Failure FailureKind          `json:"failure,omitempty"`
	Detail  string               `json:"detail,omitempty"`
}

func (o Outcome) OK() bool { return o.Result != nil }

// 文档注释：聚合快照
// 背景：发布给观察者与轮询方的只读副本；Outcomes 的键始终是本轮候选 ID 的子集，不混入其他轮次。
type Snapshot struct {
	Round      uint64                  `json:"round"`
	Query      geo.Coordinate          `json:"query"`
	State      State                   `json:"state"`
	Candidates []facility.ID           `json:"candidates"`
	Outcomes   map[facility.ID]Outcome `json:"outcomes"`
}

// Pending 尚未得到结果的候选数
func (s Snapshot) Pending() int { return len(s.Candidates) - len(s.Outcomes) }

func (r *round) snapshot() Snapshot {
	return Snapshot{
		Round:      r.id,
		Query:      r.query,
		State:      r.state,
		Candidates: r.ids,
		Outcomes:   maps.Clone(r.outcomes),
	}
}
