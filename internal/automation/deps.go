package automation

import (
	"context"
	"time"

	"boardflow/internal/models"

	"github.com/sirupsen/logrus"
)

// ItemSaver persists an item. Passing OriginAutomation keeps the save from
// producing events. An item with ID 0 is created.
type ItemSaver interface {
	SaveItem(ctx context.Context, item *models.Item, origin Origin) error
}

// BoardLookup resolves the records an action may target. Every lookup is
// scoped to the rule's board so a rule can never reach another board's data.
// Lookups return repository.ErrNotFound when nothing matches.
type BoardLookup interface {
	Board(ctx context.Context, boardID uint) (*models.Board, error)
	FindGroup(ctx context.Context, boardID, groupID uint) (*models.Group, error)
	FindBoardUser(ctx context.Context, boardID, userID uint) (*models.User, error)
	FirstColumnOfType(ctx context.Context, boardID uint, columnType string) (*models.Column, error)
	OrganizationOwner(ctx context.Context, boardID uint) (*models.User, error)
}

// UpdateCreator posts a comment on an item.
type UpdateCreator interface {
	CreateUpdate(ctx context.Context, item *models.Item, authorID uint, body string) (*models.ItemUpdate, error)
}

// Notifier delivers an in-app notification.
type Notifier interface {
	Notify(ctx context.Context, userID uint, title, message, link string) error
}

// Mailer sends an email.
type Mailer interface {
	Send(ctx context.Context, subject, body string, recipients []string) error
}

// Deps are the collaborators the built-in actions use.
type Deps struct {
	Items    ItemSaver
	Boards   BoardLookup
	Updates  UpdateCreator
	Notifier Notifier
	Mailer   Mailer
	Logger   *logrus.Logger
	Now      func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) logger() *logrus.Logger {
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	return d.Logger
}
