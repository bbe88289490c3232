package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// ContactCache caches accepted recruiter contacts per company. The
// redis-backed implementation lives in internal/adapter/hrlookup.
type ContactCache interface {
	Get(ctx domain.Context, company string) (domain.HRContact, bool)
	Put(ctx domain.Context, company string, contact domain.HRContact)
}

// ContactService resolves a verified recruiter email for a (company,
// role) across ranked lookup providers. A miss is a normal outcome and
// is reported as domain.ErrNotFound, never as a fabricated address.
type ContactService struct {
	Finders []domain.ContactFinder
	Cache   ContactCache
	Timeout time.Duration
}

// NewContactService builds the resolver over ranked finders. cache may
// be nil.
func NewContactService(finders []domain.ContactFinder, cache ContactCache, timeout time.Duration) *ContactService {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ContactService{Finders: finders, Cache: cache, Timeout: timeout}
}

// Resolve tries providers in rank order and returns the first contact
// passing the acceptance rule. Provider errors are accumulated; when
// every provider misses, the returned error wraps domain.ErrNotFound
// and carries the per-provider reasons for the log line.
func (s *ContactService) Resolve(ctx domain.Context, company, role, companyDomain string) (domain.HRContact, error) {
	if strings.TrimSpace(company) == "" {
		return domain.HRContact{}, fmt.Errorf("op=contacts.resolve: company required: %w", domain.ErrInvalidArgument)
	}
	if s.Cache != nil {
		if c, ok := s.Cache.Get(ctx, company); ok && c.Acceptable() {
			return c, nil
		}
	}

	var reasons []string
	for _, f := range s.Finders {
		callCtx, cancel := context.WithTimeout(ctx, s.Timeout)
		contact, err := f.Find(callCtx, company, role, companyDomain)
		cancel()
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				slog.Debug("contact lookup failed",
					slog.String("provider", f.Name()),
					slog.String("company", company),
					slog.Any("error", err))
			}
			reasons = append(reasons, fmt.Sprintf("%s: %v", f.Name(), err))
			continue
		}
		if !contact.Acceptable() {
			reasons = append(reasons, fmt.Sprintf("%s: contact below acceptance bar", f.Name()))
			continue
		}
		if s.Cache != nil {
			s.Cache.Put(ctx, company, contact)
		}
		return contact, nil
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "no lookup providers configured")
	}
	return domain.HRContact{Source: domain.ContactSourceNotFound},
		fmt.Errorf("op=contacts.resolve company=%s: %s: %w", company, strings.Join(reasons, "; "), domain.ErrNotFound)
}
