package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NordCoder/Courier/internal/domain/history"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/domain/preference"
	"github.com/NordCoder/Courier/internal/domain/template"
	"github.com/NordCoder/Courier/internal/ledger"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakePrefRepo struct {
	mu    sync.Mutex
	byID  map[string]*preference.Preferences
	err   error
	saved []*preference.Preferences
}

func newFakePrefRepo(ps ...*preference.Preferences) *fakePrefRepo {
	r := &fakePrefRepo{byID: map[string]*preference.Preferences{}}
	for _, p := range ps {
		r.byID[p.UserID] = p
	}
	return r
}

func (r *fakePrefRepo) Get(_ context.Context, userID string) (*preference.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.byID[userID]
	if !ok {
		return nil, preference.ErrNotFound
	}
	return p, nil
}

func (r *fakePrefRepo) Upsert(_ context.Context, p *preference.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.byID[p.UserID] = p
	r.saved = append(r.saved, p)
	return nil
}

type fakeTemplateRepo struct {
	mu   sync.Mutex
	tpls map[string]*template.Template
	err  error
}

func tplKey(et notification.EventType, ch notification.Channel) string {
	return string(et) + "/" + string(ch)
}

func newFakeTemplateRepo(ts ...*template.Template) *fakeTemplateRepo {
	r := &fakeTemplateRepo{tpls: map[string]*template.Template{}}
	for _, t := range ts {
		r.tpls[tplKey(t.EventType, t.Channel)] = t
	}
	return r
}

func (r *fakeTemplateRepo) Get(_ context.Context, et notification.EventType, ch notification.Channel) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	t, ok := r.tpls[tplKey(et, ch)]
	if !ok {
		return nil, template.ErrNotFound
	}
	return t, nil
}

func (r *fakeTemplateRepo) Create(_ context.Context, t *template.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := tplKey(t.EventType, t.Channel)
	if _, ok := r.tpls[k]; ok {
		return template.ErrDuplicate
	}
	r.tpls[k] = t
	return nil
}

func (r *fakeTemplateRepo) Update(_ context.Context, t *template.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, cur := range r.tpls {
		if cur.ID == t.ID {
			r.tpls[k] = t
			return nil
		}
	}
	return template.ErrNotFound
}

func (r *fakeTemplateRepo) List(context.Context) ([]*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*template.Template, 0, len(r.tpls))
	for _, t := range r.tpls {
		out = append(out, t)
	}
	return out, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, e ledger.Entry) (*history.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.entries = append(r.entries, e)
	return &history.Record{ID: "rec-" + string(e.Channel), DeliveryStatus: e.Status}, nil
}

func (r *fakeRecorder) byChannel() map[notification.Channel]ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[notification.Channel]ledger.Entry{}
	for _, e := range r.entries {
		out[e.Channel] = e
	}
	return out
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []notification.Message
	fails int
	err   error
	calls int
}

func (p *fakePublisher) Publish(_ context.Context, m notification.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.fails {
		if p.err != nil {
			return p.err
		}
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, m)
	return nil
}

type fakeRelay struct {
	mu      sync.Mutex
	enabled bool
	result  RelayResult
	sent    []RelayData
}

func (r *fakeRelay) IsEnabled() bool { return r.enabled }

func (r *fakeRelay) Send(_ context.Context, _ notification.Event, d RelayData) RelayResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, d)
	return r.result
}

type stubPolicy struct{ d Decision }

func (s stubPolicy) Evaluate(context.Context, string, notification.EventType) Decision { return s.d }
