package telemetry

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// MetricType defines the metric type.
type MetricType int

const (
	// GitSummaryType is the type for the GitSummaryMetric.
	GitSummaryType MetricType = iota
	// ContractPublishedType is the type for the ContractPublishedMetric.
	ContractPublishedType
	// InvitationFlowType is the type for the InvitationFlowMetric.
	InvitationFlowType
	// MatchDecisionType is the type for the MatchDecisionMetric.
	MatchDecisionType
	// PlatformStatsType is the type for the PlatformStatsMetric.
	PlatformStatsType
)

// Metric defines a metric.
type Metric struct {
	RowID     int64       `json:"-"`
	Version   int         `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MetricType  `json:"type"`
	Payload   interface{} `json:"payload"`
}

// Serialize serializes the metric.
func (m Metric) Serialize() ([]byte, error) {
	b, err := json.Marshal(m.Payload)
	if err != nil {
		return []byte(nil), errors.Errorf("marshal: %s", err)
	}

	return b, nil
}

// GitSummaryMetricVersion is a type for versioning GitSummary metrics.
type GitSummaryMetricVersion int64

// GitSummaryMetricV1 is the V1 version of GitSummary metric.
const GitSummaryMetricV1 GitSummaryMetricVersion = iota

// GitSummaryMetric contains Git information of the binary.
type GitSummaryMetric struct {
	Version GitSummaryMetricVersion `json:"version"`

	GitCommit     string `json:"git_commit"`
	GitBranch     string `json:"git_branch"`
	GitState      string `json:"git_state"`
	GitSummary    string `json:"git_summary"`
	BuildDate     string `json:"build_date"`
	BinaryVersion string `json:"binary_version"`
}

// ContractPublishedMetricVersion is a type for versioning ContractPublished metrics.
type ContractPublishedMetricVersion int64

// ContractPublishedMetricV1 is the V1 version of ContractPublished metric.
const ContractPublishedMetricV1 ContractPublishedMetricVersion = iota

// ContractPublishedMetric records one contract reaching publication.
type ContractPublishedMetric struct {
	Version ContractPublishedMetricVersion `json:"version"`

	ContractNumber string `json:"contract_number"`
	ContractType   string `json:"contract_type"`
	DurationMonths int    `json:"duration_months"`
	DaysToPublish  int64  `json:"days_to_publish"`
	Objections     int    `json:"objections"`
	HadGuarantor   bool   `json:"had_guarantor"`
}

// InvitationFlowMetricVersion is a type for versioning InvitationFlow metrics.
type InvitationFlowMetricVersion int64

// InvitationFlowMetricV1 is the V1 version of InvitationFlow metric.
const InvitationFlowMetricV1 InvitationFlowMetricVersion = iota

// InvitationFlowMetric records one step of an invitation lifecycle.
type InvitationFlowMetric struct {
	Version InvitationFlowMetricVersion `json:"version"`

	Event    string `json:"event"` // issued, accepted, expired
	Method   string `json:"method"`
	Attempts int    `json:"attempts"`
}

// MatchDecisionMetricVersion is a type for versioning MatchDecision metrics.
type MatchDecisionMetricVersion int64

// MatchDecisionMetricV1 is the V1 version of MatchDecision metric.
const MatchDecisionMetricV1 MatchDecisionMetricVersion = iota

// MatchDecisionMetric records a landlord decision on a match request.
type MatchDecisionMetric struct {
	Version MatchDecisionMetricVersion `json:"version"`

	Decision      string `json:"decision"` // accepted, rejected, expired
	Score         int    `json:"score"`
	ResponseHours int64  `json:"response_hours"`
}

// PlatformStatsMetricVersion is a type for versioning PlatformStats metrics.
type PlatformStatsMetricVersion int64

// PlatformStatsMetricV1 is the V1 version of PlatformStats metric.
const PlatformStatsMetricV1 PlatformStatsMetricVersion = iota

// PlatformStatsMetric is a periodic snapshot of platform wide counters.
type PlatformStatsMetric struct {
	Version PlatformStatsMetricVersion `json:"version"`

	ContractsByState        map[string]int64 `json:"contracts_by_state"`
	NotificationsTotal      int64            `json:"notifications_total"`
	NotificationsUnread     int64            `json:"notifications_unread"`
	NotificationsFailedToday int64           `json:"notifications_failed_today"`
	MatchRequestsTotal      int64            `json:"match_requests_total"`
}
