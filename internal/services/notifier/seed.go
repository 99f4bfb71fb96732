package notifier

import (
	"context"
	"fmt"

	config "github.com/NordCoder/Courier/internal/config/notifier"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/domain/preference"
	"github.com/NordCoder/Courier/internal/domain/template"
)

// ApplySeed creates missing templates and upserts seeded preferences.
func ApplySeed(ctx context.Context, seed *config.Seed, tpls *TemplateService, prefs *PreferenceService) (int, int, error) {
	if seed == nil {
		return 0, 0, nil
	}
	list := make([]*template.Template, 0, len(seed.Templates))
	for _, ts := range seed.Templates {
		list = append(list, &template.Template{
			EventType: notification.EventType(ts.EventType),
			Channel:   notification.Channel(ts.Channel),
			Format:    notification.Format(ts.Format),
			Subject:   ts.Subject,
			Body:      ts.Body,
			Variables: ts.Variables,
		})
	}
	created, err := tpls.Seed(ctx, list)
	if err != nil {
		return created, 0, err
	}

	for i, ps := range seed.Preferences {
		p := preferencesFromSeed(ps)
		if err := prefs.UpdatePreferences(ctx, p); err != nil {
			return created, i, fmt.Errorf("seed preferences %s: %w", ps.UserID, err)
		}
	}
	return created, len(seed.Preferences), nil
}

func preferencesFromSeed(ps config.PreferenceSeed) *preference.Preferences {
	p := &preference.Preferences{
		UserID: ps.UserID,
		Events: make(map[notification.EventType]preference.EventPreference, len(ps.Events)),
	}
	for et, es := range ps.Events {
		chans := make([]notification.Channel, 0, len(es.Channels))
		for _, c := range es.Channels {
			chans = append(chans, notification.Channel(c))
		}
		p.Events[notification.EventType(et)] = preference.EventPreference{
			Enabled:   es.Enabled,
			Channels:  chans,
			Frequency: preference.Frequency(es.Frequency),
		}
	}
	if q := ps.QuietHours; q != nil {
		p.QuietHours = &preference.QuietHours{Enabled: q.Enabled, Start: q.Start, End: q.End, Timezone: q.Timezone}
	}
	if fl := ps.FrequencyLimit; fl != nil {
		p.FrequencyLimit = &preference.FrequencyLimit{
			Enabled:          fl.Enabled,
			MaxNotifications: fl.MaxNotifications,
			Window:           fl.Window,
		}
	}
	return p
}
