package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/message"

	"github.com/davork/chatlink/internal/backend"
	"github.com/davork/chatlink/internal/domain"
	"github.com/davork/chatlink/pkg/validator"
)

// Attachment is a single draft image.
type Attachment struct {
	Data        []byte
	ContentType string

	// Release frees the preview resource tied to the attachment (an
	// object-URL equivalent). Called once when the attachment leaves the
	// draft, whether removed or sent.
	Release func()
}

// Composer holds the draft for one message box and performs the multi-step
// send: allocate id, upload attachment, write the message record, update the
// chat summary. The sequence is best-effort; a partial failure is reported
// and not rolled back, and the draft is kept so the user can retry.
type Composer struct {
	store    backend.Store
	blobs    backend.Blobs
	session  Identity
	notifier Notifier
	p        *message.Printer
	now      func() int64

	mu    sync.Mutex
	text  string
	image *Attachment
}

func NewComposer(store backend.Store, blobs backend.Blobs, session Identity, notifier Notifier, p *message.Printer) *Composer {
	return &Composer{
		store:    store,
		blobs:    blobs,
		session:  session,
		notifier: notifier,
		p:        p,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

func (c *Composer) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Attach validates and stages an image, replacing any previous one. The
// check runs here, before anything touches the network; rejections are
// surfaced as a notification and returned.
func (c *Composer) Attach(att *Attachment) error {
	if errs := validator.ValidateAttachment(att.ContentType, len(att.Data)); errs.HasErrors() {
		c.notifier.Error(c.p.Sprintf("Error"), c.attachmentMessage(att))
		return errs
	}

	c.mu.Lock()
	prev := c.image
	c.image = att
	c.mu.Unlock()

	releaseAttachment(prev)
	return nil
}

// RemoveImage drops the staged image and releases its preview.
func (c *Composer) RemoveImage() {
	c.mu.Lock()
	prev := c.image
	c.image = nil
	c.mu.Unlock()

	releaseAttachment(prev)
}

// Submit sends the draft to chatID. A draft with neither trimmed text nor an
// image, no signed-in identity, or no target chat is a no-op: nothing is
// allocated or written. On success the draft is cleared; on failure it is
// left intact.
func (c *Composer) Submit(ctx context.Context, chatID string) error {
	user := c.session.Current()

	c.mu.Lock()
	text := strings.TrimSpace(c.text)
	image := c.image
	c.mu.Unlock()

	if chatID == "" || (text == "" && image == nil) || user == nil {
		return nil
	}

	if image != nil {
		if errs := validator.ValidateAttachment(image.ContentType, len(image.Data)); errs.HasErrors() {
			c.notifier.Error(c.p.Sprintf("Error"), c.attachmentMessage(image))
			return errs
		}
	}

	msgID, err := c.store.Push(ctx, "messages/"+chatID)
	if err != nil {
		return c.fail("allocating message id", err)
	}

	imageURL := ""
	if image != nil {
		blobPath := "chat_images/" + chatID + "/" + msgID
		if err := c.blobs.Upload(ctx, blobPath, image.Data, image.ContentType); err != nil {
			return c.fail("uploading attachment", err)
		}
		imageURL, err = c.blobs.DownloadURL(ctx, blobPath)
		if err != nil {
			return c.fail("resolving attachment url", err)
		}
	}

	senderName := user.DisplayName
	if senderName == "" {
		senderName = c.p.Sprintf("User")
	}

	msg := domain.Message{
		ID:         msgID,
		Text:       text,
		SenderID:   user.UID,
		SenderName: senderName,
		Timestamp:  c.now(),
		ImageURL:   imageURL,
	}
	if err := c.store.Write(ctx, "messages/"+chatID+"/"+msgID, msg); err != nil {
		return c.fail("writing message", err)
	}

	summary := text
	if summary == "" && imageURL != "" {
		summary = c.p.Sprintf("Image sent")
	}
	update := map[string]any{
		"lastMessage": domain.LastMessage{Text: summary, Timestamp: msg.Timestamp},
	}
	if err := c.store.Update(ctx, "chats/"+chatID, update); err != nil {
		return c.fail("updating chat summary", err)
	}

	c.mu.Lock()
	c.text = ""
	sent := c.image
	c.image = nil
	c.mu.Unlock()

	releaseAttachment(sent)
	return nil
}

// fail logs the detail, shows the generic localized error, and leaves the
// draft untouched for a retry.
func (c *Composer) fail(step string, err error) error {
	log.Printf("composer: %s: %v", step, err)
	c.notifier.Error(c.p.Sprintf("Error"), c.p.Sprintf("Could not send the message. Try again."))
	return fmt.Errorf("%s: %w", step, err)
}

func (c *Composer) attachmentMessage(att *Attachment) string {
	if !strings.HasPrefix(att.ContentType, "image/") {
		return c.p.Sprintf("Only image attachments are allowed.")
	}
	return c.p.Sprintf("The image must be smaller than 5MB.")
}

func releaseAttachment(att *Attachment) {
	if att != nil && att.Release != nil {
		att.Release()
	}
}
