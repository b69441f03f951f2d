package mailer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/diagnosis/signnatural-api/internal/utils"
	"github.com/diagnosis/signnatural-api/pkg/logger"
)

// DevMailer prints messages to a writer instead of sending them. Only wire it
// in development: the printed body contains the code.
type DevMailer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewDevMailer(out io.Writer) *DevMailer {
	return &DevMailer{out: out}
}

func (d *DevMailer) Send(ctx context.Context, msg Message) error {
	logger.InfoContext(ctx, "dev mail written", "to", utils.MaskEmail(msg.To), "subject", msg.Subject)

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := fmt.Fprintf(d.out, "\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"EMAIL (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"Subject: %s\n"+
		"\n"+
		"%s"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		msg.To, msg.ToName, msg.Subject, msg.Text)
	return err
}
