package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Courier/internal/domain/preference"
	"github.com/NordCoder/Courier/internal/domain/template"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTemplateExists     = errors.New("template already exists for event type and channel")
	ErrInvalidPreferences = errors.New("invalid preferences")
)

type TemplateService struct {
	repo template.Repo
	log  *zap.Logger
}

func NewTemplateService(repo template.Repo, log *zap.Logger) *TemplateService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TemplateService{repo: repo, log: log.With(zap.String("component", "notifier.templates"))}
}

// CreateTemplate validates t and stores it. A second template for the same (event type,
// channel) fails with ErrTemplateExists.
func (s *TemplateService) CreateTemplate(ctx context.Context, t *template.Template) error {
	if err := ValidateTemplate(t); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, template.ErrDuplicate) {
			return fmt.Errorf("%w: %s/%s", ErrTemplateExists, t.EventType, t.Channel)
		}
		return err
	}
	return nil
}

func (s *TemplateService) UpdateTemplate(ctx context.Context, t *template.Template) error {
	if err := ValidateTemplate(t); err != nil {
		return err
	}
	return s.repo.Update(ctx, t)
}

func (s *TemplateService) ListTemplates(ctx context.Context) ([]*template.Template, error) {
	return s.repo.List(ctx)
}

// Seed creates the given templates, leaving existing (event type, channel) pairs untouched.
func (s *TemplateService) Seed(ctx context.Context, tpls []*template.Template) (int, error) {
	created := 0
	for _, t := range tpls {
		err := s.CreateTemplate(ctx, t)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrTemplateExists):
			s.log.Debug("template exists; keeping stored one",
				zap.String("event_type", string(t.EventType)), zap.String("channel", string(t.Channel)))
		default:
			return created, fmt.Errorf("seed %s/%s: %w", t.EventType, t.Channel, err)
		}
	}
	return created, nil
}

type PreferenceService struct {
	repo preference.Repo
}

func NewPreferenceService(repo preference.Repo) *PreferenceService {
	return &PreferenceService{repo: repo}
}

// GetPreferences returns the stored preferences or the built-in defaults. Defaults are not persisted.
func (s *PreferenceService) GetPreferences(ctx context.Context, userID string) (*preference.Preferences, error) {
	p, err := s.repo.Get(ctx, userID)
	if errors.Is(err, preference.ErrNotFound) {
		return preference.Defaults(userID), nil
	}
	return p, err
}

func (s *PreferenceService) UpdatePreferences(ctx context.Context, p *preference.Preferences) error {
	if err := ValidatePreferences(p); err != nil {
		return err
	}
	return s.repo.Upsert(ctx, p)
}

func ValidatePreferences(p *preference.Preferences) error {
	if p == nil || p.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidPreferences)
	}
	for et, ep := range p.Events {
		if !et.Known() {
			return fmt.Errorf("%w: unknown event type %q", ErrInvalidPreferences, et)
		}
		for _, ch := range ep.Channels {
			if !ch.Valid() {
				return fmt.Errorf("%w: %s: unknown channel %q", ErrInvalidPreferences, et, ch)
			}
		}
	}
	if q := p.QuietHours; q != nil && q.Enabled {
		if _, err := parseClock(q.Start); err != nil {
			return fmt.Errorf("%w: quiet hours start: %v", ErrInvalidPreferences, err)
		}
		if _, err := parseClock(q.End); err != nil {
			return fmt.Errorf("%w: quiet hours end: %v", ErrInvalidPreferences, err)
		}
	}
	if fl := p.FrequencyLimit; fl != nil && fl.Enabled {
		if fl.MaxNotifications <= 0 || fl.Window <= 0 {
			return fmt.Errorf("%w: frequency limit needs positive max and window", ErrInvalidPreferences)
		}
	}
	return nil
}
