package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"eventpipeline/internal/store"
	"eventpipeline/pkg/models"
)

// applySideEffect dispatches on the event type. The switch is exhaustive
// over the known vocabulary so a new type is a compile-visible extension
// point; genuinely unknown strings fall through to a logged no-op.
func (p *Pipeline) applySideEffect(ctx context.Context, e *models.Event) error {
	switch e.Type {
	case models.EventUserCreated:
		return p.handleUserCreated(ctx, e)
	case models.EventUserUpdated:
		return p.handleUserUpdated(ctx, e)
	case models.EventUserDeleted:
		return p.handleUserDeleted(ctx, e)
	case models.EventPurchaseCreated:
		return p.handlePurchaseCreated(e)
	case models.EventOrderCreated, models.EventOrderCompleted:
		log.Printf("[Pipeline] Order event recorded: type=%s id=%s", e.Type, e.ID)
		return nil
	case models.EventNotificationSent:
		log.Printf("[Pipeline] Notification event recorded: type=%s id=%s", e.Type, e.ID)
		return nil
	case models.EventSystemError, models.EventCustom:
		log.Printf("[Pipeline] Event recorded, no side effect: type=%s id=%s", e.Type, e.ID)
		return nil
	default:
		log.Printf("[Pipeline] Unknown event type, ignoring: type=%s id=%s", e.Type, e.ID)
		return nil
	}
}

// userPayload is the narrowed shape the user.* handlers need from the open
// data map.
type userPayload struct {
	ID    string
	Email string
	Name  string
}

func narrowUserPayload(e *models.Event) userPayload {
	p := userPayload{ID: e.UserID}
	if id, ok := e.Data["id"].(string); ok && p.ID == "" {
		p.ID = id
	}
	if email, ok := e.Data["email"].(string); ok {
		p.Email = email
	}
	if name, ok := e.Data["name"].(string); ok {
		p.Name = name
	}
	return p
}

func (p *Pipeline) handleUserCreated(ctx context.Context, e *models.Event) error {
	payload := narrowUserPayload(e)
	if payload.Email == "" {
		return fmt.Errorf("user.created event %s has no email in payload", e.ID)
	}
	if payload.ID == "" {
		payload.ID = uuid.New().String()
	}

	user := &models.User{
		ID:     payload.ID,
		Email:  payload.Email,
		Name:   payload.Name,
		Active: true,
	}

	err := p.Users.Insert(ctx, user)
	if errors.Is(err, store.ErrDuplicateEmail) {
		// Expected under at-least-once delivery.
		log.Printf("[Pipeline] User already exists, treating as success: email=%s event=%s",
			payload.Email, e.ID)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("[Pipeline] User created: id=%s email=%s event=%s", user.ID, user.Email, e.ID)
	return nil
}

func (p *Pipeline) handleUserUpdated(ctx context.Context, e *models.Event) error {
	payload := narrowUserPayload(e)
	if payload.ID == "" {
		log.Printf("[Pipeline] user.updated event has no user ID, skipping: event=%s", e.ID)
		return nil
	}

	user, err := p.Users.UpdateByID(ctx, payload.ID, payload.Email, payload.Name)
	if err != nil {
		return err
	}
	if user == nil {
		log.Printf("[Pipeline] user.updated target not found: user=%s event=%s", payload.ID, e.ID)
		return nil
	}

	log.Printf("[Pipeline] User updated: id=%s event=%s", user.ID, e.ID)
	return nil
}

func (p *Pipeline) handleUserDeleted(ctx context.Context, e *models.Event) error {
	payload := narrowUserPayload(e)
	if payload.ID == "" {
		log.Printf("[Pipeline] user.deleted event has no user ID, skipping: event=%s", e.ID)
		return nil
	}

	found, err := p.Users.Deactivate(ctx, payload.ID)
	if err != nil {
		return err
	}
	if !found {
		log.Printf("[Pipeline] user.deleted target not found: user=%s event=%s", payload.ID, e.ID)
		return nil
	}

	log.Printf("[Pipeline] User deactivated: id=%s event=%s", payload.ID, e.ID)
	return nil
}

// handlePurchaseCreated is a side channel only; nothing outside the event
// store is mutated.
func (p *Pipeline) handlePurchaseCreated(e *models.Event) error {
	amount, _ := e.Data["amount"].(float64)
	item, _ := e.Data["item"].(string)
	log.Printf("[Pipeline] Purchase recorded: user=%s item=%s amount=%.2f event=%s",
		e.UserID, item, amount, e.ID)
	return nil
}
