// Package notify contains the sinks that consume bus events on behalf of
// node operators: reward notices over email and the per-user channel, and
// node status alerts to the ops Telegram chat.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/elicharlese/ThePublic-sub000/internal/events"
	"github.com/elicharlese/ThePublic-sub000/internal/models"
)

// EmailConfig configures the reward mailer. An empty From disables sending;
// the per-user channel notification still goes out.
type EmailConfig struct {
	From     string
	Password string
	SMTPAddr string
}

// RewardNotifier watches reward settlements and notifies owners.
type RewardNotifier struct {
	bus   *events.Bus
	cfg   EmailConfig
	stop  func()
	donec chan struct{}
	log   *logrus.Entry
}

// NewRewardNotifier subscribes to the reward channel and starts consuming.
func NewRewardNotifier(bus *events.Bus, cfg EmailConfig) *RewardNotifier {
	ch, cancel := bus.Subscribe(events.ChannelRewards)
	n := &RewardNotifier{
		bus:   bus,
		cfg:   cfg,
		stop:  cancel,
		donec: make(chan struct{}),
		log:   logrus.WithField("component", "notify"),
	}
	go n.consume(ch)
	return n
}

func (n *RewardNotifier) consume(ch <-chan events.Event) {
	defer close(n.donec)
	for ev := range ch {
		if ev.Type != events.RewardDistributed {
			continue
		}
		reward, ok := ev.Payload.(*models.Reward)
		if !ok {
			continue
		}

		n.bus.NotifyUser(reward.OwnerID, map[string]interface{}{
			"kind":   "reward_distributed",
			"reward": reward,
		})

		if n.cfg.From != "" {
			if err := n.sendMail(reward); err != nil {
				n.log.Warnf("failed to send reward email for %s: %v", reward.ID, err)
			}
		}
	}
}

func (n *RewardNotifier) sendMail(reward *models.Reward) error {
	// Owner ids double as the notification address suffix resolved by the
	// auth layer's mail alias table.
	to := reward.OwnerID
	if !strings.Contains(to, "@") {
		return nil
	}

	subject := fmt.Sprintf("Reward distributed for node %s", reward.NodeID)
	body := fmt.Sprintf(`
Hello,

A reward for your node %s has been distributed.

Amount: %.4f
Category: %s
Transaction: %s
Period: %s to %s

Best regards,
ThePublic Network
`, reward.NodeID, reward.Amount, reward.Category, reward.TxSignature,
		reward.PeriodStart.Format("2006-01-02"), reward.PeriodEnd.Format("2006-01-02"))

	msg := "From: " + n.cfg.From + "\n" +
		"To: " + to + "\n" +
		"Subject: " + subject + "\n\n" +
		body

	host := strings.Split(n.cfg.SMTPAddr, ":")[0]
	return smtp.SendMail(n.cfg.SMTPAddr,
		smtp.PlainAuth("", n.cfg.From, n.cfg.Password, host),
		n.cfg.From, []string{to}, []byte(msg))
}

// Close stops consuming and waits for the worker to drain.
func (n *RewardNotifier) Close() {
	n.stop()
	<-n.donec
}
