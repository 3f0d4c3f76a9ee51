package chatbot

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"paygate/internal/dispatch"
	"paygate/internal/domain"
	"paygate/internal/storage"
)

// Notifier reacts to account lifecycle events off the request path.
type Notifier struct {
	archive   storage.Archive
	messenger Messenger
	pool      dispatch.Pool
	logger    logrus.FieldLogger
}

func NewNotifier(archive storage.Archive, messenger Messenger, pool dispatch.Pool, logger logrus.FieldLogger) *Notifier {
	if archive == nil {
		archive = storage.Disabled{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Notifier{archive: archive, messenger: messenger, pool: pool, logger: logger}
}

// AccessGranted tells a chat user their payment went through.
func (n *Notifier) AccessGranted(user *domain.User) {
	chatID, ok := ChatIDFor(user.ExternalID)
	if !ok {
		return
	}
	n.submit("access-granted", user.ExternalID, func(ctx context.Context) error {
		return n.messenger.Send(ctx, chatID, accessGrantedMessage)
	})
}

// OnboardingCompleted archives the synthesized profile and sends the capabilities
// overview to chat users. It has the signature of service.CompletionHook.
func (n *Notifier) OnboardingCompleted(_ context.Context, user *domain.User) {
	snapshot := *user
	n.submit("onboarding-completed", user.ExternalID, func(ctx context.Context) error {
		var errs []error
		if snapshot.ProfileSummary != nil {
			loc, err := n.archive.PutJSON(ctx, profileKey(snapshot.ExternalID), snapshot.ProfileSummary)
			if err != nil {
				errs = append(errs, fmt.Errorf("archive profile: %w", err))
			} else if loc != "" {
				n.logger.WithField("external_id", snapshot.ExternalID).Infof("profile archived to %s", loc)
			}
		}
		if chatID, ok := ChatIDFor(snapshot.ExternalID); ok {
			if err := n.messenger.Send(ctx, chatID, capabilitiesMessage(&snapshot)); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

func (n *Notifier) submit(name, externalID string, run func(ctx context.Context) error) {
	err := n.pool.Submit(dispatch.Job{Name: name, Run: run})
	if err != nil {
		n.logger.WithError(err).WithField("external_id", externalID).Warnf("%s notification dropped", name)
	}
}

func profileKey(externalID string) string {
	return "profiles/" + externalID + ".json"
}
