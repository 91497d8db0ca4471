// Package wall applies pledge mutations one at a time on a single goroutine.
package wall

import (
	"commitment-wall/annotator"
	"commitment-wall/models"
	"commitment-wall/repository"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrStopped is returned when the loop is no longer running.
var ErrStopped = errors.New("event loop stopped")

type result struct {
	pledge models.Pledge
	err    error
}

type event struct {
	name  string
	apply func(ctx context.Context) result
	reply chan result
}

// Loop owns every write to the repository.
type Loop struct {
	repo        *repository.Repository
	annotator   annotator.Annotator
	submitDelay time.Duration
	log         *zap.Logger

	events chan event
	done   chan struct{}
}

// NewLoop returns a Loop; call Run to start it.
func NewLoop(repo *repository.Repository, a annotator.Annotator, submitDelay time.Duration, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		repo:        repo,
		annotator:   a,
		submitDelay: submitDelay,
		log:         log,
		events:      make(chan event),
		done:        make(chan struct{}),
	}
}

// Run handles events until ctx is cancelled. An event that was accepted
// always finishes, even if its caller has gone away.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	l.log.Info("Event loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.Info("Event loop stopped")
			return nil
		case ev := <-l.events:
			res := ev.apply(context.WithoutCancel(ctx))
			if res.err != nil {
				l.log.Debug("Event failed", zap.String("event", ev.name), zap.Error(res.err))
			} else {
				l.log.Debug("Event applied", zap.String("event", ev.name), zap.String("id", res.pledge.ID))
			}
			ev.reply <- res
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, name string, apply func(ctx context.Context) result) (models.Pledge, error) {
	ev := event{name: name, apply: apply, reply: make(chan result, 1)}
	select {
	case l.events <- ev:
	case <-l.done:
		return models.Pledge{}, ErrStopped
	case <-ctx.Done():
		return models.Pledge{}, ctx.Err()
	}

	select {
	case res := <-ev.reply:
		return res.pledge, res.err
	case <-ctx.Done():
		return models.Pledge{}, ctx.Err()
	}
}

// Submit annotates a text draft that arrived without an annotation, waits
// the simulated submit delay and creates the pledge.
func (l *Loop) Submit(ctx context.Context, draft repository.Draft) (models.Pledge, error) {
	return l.dispatch(ctx, "submit", func(ctx context.Context) result {
		if l.needsAnnotation(draft) {
			a, ok, err := l.annotator.Annotate(ctx, draft.Message)
			if err != nil {
				l.log.Warn("Annotation failed, using defaults", zap.Error(err))
			} else if ok {
				draft.AICategory = string(a.Category)
				draft.AISentiment = a.Sentiment
				draft.AIImpactScore = a.ImpactLabel()
			}
		}
		if l.submitDelay > 0 {
			time.Sleep(l.submitDelay)
		}
		p, err := l.repo.Create(ctx, draft)
		return result{pledge: p, err: err}
	})
}

// Edit applies patch to pledge id.
func (l *Loop) Edit(ctx context.Context, id, passcode string, patch repository.Patch) (models.Pledge, error) {
	return l.dispatch(ctx, "edit", func(ctx context.Context) result {
		p, err := l.repo.Update(ctx, id, passcode, patch)
		return result{pledge: p, err: err}
	})
}

// Remove deletes pledge id.
func (l *Loop) Remove(ctx context.Context, id, passcode string) error {
	_, err := l.dispatch(ctx, "remove", func(ctx context.Context) result {
		return result{pledge: models.Pledge{ID: id}, err: l.repo.Delete(ctx, id, passcode)}
	})
	return err
}

func (l *Loop) needsAnnotation(d repository.Draft) bool {
	return l.annotator != nil &&
		d.InputMethod != models.InputMethodVideo &&
		d.AICategory == "" && d.AISentiment == "" && d.AIImpactScore == ""
}
