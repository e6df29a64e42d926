package eventbus

import "fmt"

const (
	// SubjectPrefix is the canonical prefix for distributed lifecycle events.
	SubjectPrefix = "payrail.v1.lifecycle"
)

// Domain identifies saga/repair lifecycle event domains.
type Domain string

const (
	DomainSaga   Domain = "saga"
	DomainRepair Domain = "repair"
)

// SagaSubject returns the canonical saga lifecycle subject for a tenant.
func SagaSubject(tenantID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, DomainSaga, sanitizeSegment(tenantID), sanitizeSegment(eventType))
}

// RepairSubject returns the canonical repair lifecycle subject for a tenant.
func RepairSubject(tenantID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, DomainRepair, sanitizeSegment(tenantID), sanitizeSegment(eventType))
}

// DomainWildcardSubject returns the wildcard subject covering a whole domain.
func DomainWildcardSubject(domain Domain) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, sanitizeSegment(string(domain)))
}

func sanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
