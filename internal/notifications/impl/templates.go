package impl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
)

// Template is one named notification shape. Title and Message may reference
// context values with {{ var }} markers.
type Template struct {
	Name     string
	Category notifications.Category
	Priority notifications.Priority
	Title    string
	Message  string
	Channels []notifications.ChannelType
}

// Built-in template names used by the contract and matching engines.
const (
	TemplateInvitationReceived  = "invitation_received"
	TemplateInvitationAccepted  = "invitation_accepted"
	TemplateObjectionSubmitted  = "objection_submitted"
	TemplateObjectionResponded  = "objection_responded"
	TemplateContractApproved    = "contract_approved"
	TemplateContractSigned      = "contract_signed"
	TemplateContractFullySigned = "contract_fully_signed"
	TemplateContractPublished   = "contract_published"
	TemplateContractCancelled   = "contract_cancelled"
	TemplateMatchReceived       = "match_request_received"
	TemplateMatchAccepted       = "match_request_accepted"
	TemplateMatchRejected       = "match_request_rejected"
	TemplateMatchExpired        = "match_request_expired"
	TemplateMatchFollowUp       = "match_follow_up"
	TemplateMatchDigest         = "match_digest"
	TemplateNotificationDigest  = "notification_digest"
)

// builtinTemplates is the default registry. The legal wording of outbound
// documents never lives here; templates only shape the short platform
// messages.
var builtinTemplates = map[string]Template{
	TemplateInvitationReceived: {
		Name:     TemplateInvitationReceived,
		Category: notifications.CategoryContract,
		Priority: notifications.PriorityHigh,
		Title:    "Rental invitation for {{ property_address }}",
		Message:  "{{ landlord_name }} invited you to review rental contract {{ contract_number }}.",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp},
	},
	TemplateInvitationAccepted: {
		Name:     TemplateInvitationAccepted,
		Category: notifications.CategoryContract,
		Priority: notifications.PriorityHigh,
		Title:    "{{ tenant_name }} accepted your invitation",
		Message:  "The tenant joined contract {{ contract_number }} and is reviewing the terms.",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp, notifications.ChannelPush},
	},
	TemplateObjectionSubmitted: {
		Name:     TemplateObjectionSubmitted,
		Category: notifications.CategoryContract,
		Priority: notifications.PriorityHigh,
		Title:    "New objection on contract {{ contract_number }}",
		Message:  "{{ objector_name }} objected to {{ field_reference }}: {{ justification }}",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp},
	},
	TemplateObjectionResponded: {
		Name:     TemplateObjectionResponded,
		Category: notifications.CategoryContract,
		Priority: notifications.PriorityNormal,
		Title:    "Objection {{ response }} on contract {{ contract_number }}",
		Message:  "Your objection to {{ field_reference }} was {{ response }}.",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp},
	},
	TemplateContractApproved: {
		Name:     TemplateContractApproved,
		Category: notifications.CategoryContract,
		Priority: notifications.PriorityNormal,
		Title:    "Contract {{ contract_number }} approved by {{ approver_name }}",
		Message:  "{{ approver_name }} approved the contract terms.",
		Channels: []notifications.ChannelType{notifications.ChannelInApp},
	},
	TemplateContractSigned: {
		Name:     TemplateContractSigned,
		Category: notifications.CategoryContract,
		Priority: notifications.PriorityHigh,
		Title:    "Contract {{ contract_number }} signed by {{ signer_name }}",
		Message:  "{{ signer_name }} signed as {{ signer_role }}. Next to sign: {{ next_signer }}.",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp},
	},
	TemplateContractFullySigned: {
		Name:     TemplateContractFullySigned,
		Category: notifications.CategoryContract,
		Priority: notifications.PriorityUrgent,
		Title:    "Contract {{ contract_number }} fully signed",
		Message:  "Every required signature is captured. The landlord can now publish the contract.",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp, notifications.ChannelPush},
	},
	TemplateContractPublished: {
		Name:     TemplateContractPublished,
		Category: notifications.CategoryContract,
		Priority: notifications.PriorityUrgent,
		Title:    "Contract {{ contract_number }} is now in force",
		Message:  "The rental contract was published and runs from {{ start_date }} to {{ end_date }}.",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp, notifications.ChannelPush},
	},
	TemplateContractCancelled: {
		Name:     TemplateContractCancelled,
		Category: notifications.CategoryContract,
		Priority: notifications.PriorityHigh,
		Title:    "Contract {{ contract_number }} cancelled",
		Message:  "The contract was cancelled: {{ reason }}",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp},
	},
	TemplateMatchReceived: {
		Name:     TemplateMatchReceived,
		Category: notifications.CategoryProperty,
		Priority: notifications.PriorityNormal,
		Title:    "New rental application for {{ property_address }}",
		Message:  "{{ tenant_name }} applied with compatibility score {{ score }}.",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp},
	},
	TemplateMatchAccepted: {
		Name:     TemplateMatchAccepted,
		Category: notifications.CategoryProperty,
		Priority: notifications.PriorityHigh,
		Title:    "Your application for {{ property_address }} was accepted",
		Message:  "{{ landlord_response }}",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp, notifications.ChannelPush},
	},
	TemplateMatchRejected: {
		Name:     TemplateMatchRejected,
		Category: notifications.CategoryProperty,
		Priority: notifications.PriorityNormal,
		Title:    "Your application for {{ property_address }} was declined",
		Message:  "{{ landlord_response }}",
		Channels: []notifications.ChannelType{notifications.ChannelInApp},
	},
	TemplateMatchExpired: {
		Name:     TemplateMatchExpired,
		Category: notifications.CategoryProperty,
		Priority: notifications.PriorityLow,
		Title:    "Your application for {{ property_address }} expired",
		Message:  "The landlord did not respond within {{ ttl_days }} days.",
		Channels: []notifications.ChannelType{notifications.ChannelInApp},
	},
	TemplateMatchFollowUp: {
		Name:     TemplateMatchFollowUp,
		Category: notifications.CategoryProperty,
		Priority: notifications.PriorityNormal,
		Title:    "Pending application for {{ property_address }}",
		Message:  "{{ tenant_name }}'s application is waiting for your decision since {{ submitted_date }}.",
		Channels: []notifications.ChannelType{notifications.ChannelInApp},
	},
	TemplateMatchDigest: {
		Name:     TemplateMatchDigest,
		Category: notifications.CategoryProperty,
		Priority: notifications.PriorityLow,
		Title:    "{{ match_count }} new property matches",
		Message:  "Your saved search found {{ match_count }} matching properties today.",
		Channels: []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp},
	},
	TemplateNotificationDigest: {
		Name:     TemplateNotificationDigest,
		Category: notifications.CategorySystem,
		Priority: notifications.PriorityLow,
		Title:    "Your {{ digest_type }} summary",
		Message:  "You received {{ notification_count }} notifications in this period.",
		Channels: []notifications.ChannelType{notifications.ChannelEmail},
	},
}

var templateVarRx = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// renderTemplate substitutes {{ var }} markers with context values. Unknown
// variables render empty; a structurally broken pattern returns an error so
// the caller can fall back to the raw title and message.
func renderTemplate(pattern string, context map[string]interface{}) (string, error) {
	if strings.Count(pattern, "{{") != strings.Count(pattern, "}}") {
		return "", fmt.Errorf("unbalanced template markers in %q", pattern)
	}
	out := templateVarRx.ReplaceAllStringFunc(pattern, func(marker string) string {
		name := templateVarRx.FindStringSubmatch(marker)[1]
		v, ok := context[name]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
	return strings.TrimSpace(out), nil
}
