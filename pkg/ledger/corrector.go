package ledger

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tkartasl/lease-ledger/pkg/models"
	"github.com/tkartasl/lease-ledger/pkg/queue"
)

// Corrector is the asynchronous handler for payments the validator rejected.
// It accrues late interest on the rejected installment and re-applies the
// ledger effects through Record. Handling is idempotent via the applied
// marker, so redelivered events are safe.
type Corrector struct {
	ledger  *Ledger
	queue   *queue.Queue
	log     *logrus.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewCorrector creates a corrector consuming from the given queue.
func NewCorrector(l *Ledger, q *queue.Queue, log *logrus.Logger) *Corrector {
	return &Corrector{
		ledger: l,
		queue:  q,
		log:    log,
	}
}

// Start begins consuming invalid-payment events in the background. The
// channels are recreated on every call so a stopped corrector can be started
// again.
func (c *Corrector) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	stopCh, doneCh := c.stopCh, c.doneCh
	c.mu.Unlock()

	c.log.Info("starting invalid-payment corrector")
	go c.run(stopCh, doneCh)
}

// Stop gracefully stops the corrector and waits for the loop to exit.
func (c *Corrector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stopCh, doneCh := c.stopCh, c.doneCh
	c.mu.Unlock()

	close(stopCh)
	<-doneCh
	c.log.Info("invalid-payment corrector stopped")
}

func (c *Corrector) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case event, ok := <-c.queue.Events():
			if !ok {
				return
			}
			if err := c.Handle(event); err != nil {
				c.log.WithError(err).WithFields(logrus.Fields{
					"lease":   event.Lease.ID,
					"payment": event.Payment.ID,
				}).Error("failed to correct invalid payment")
			}
		}
	}
}

// Handle applies the correction for one invalid payment: log the remaining
// shortfall, accrue the late-interest penalty on the installment, and record
// the payment against the lease ledger.
func (c *Corrector) Handle(event models.InvalidPayment) error {
	lease, payment, inst := event.Lease, event.Payment, event.Installment

	applied, err := c.ledger.Applied(payment.ID)
	if err != nil {
		return err
	}
	if applied {
		c.log.WithFields(logrus.Fields{"lease": lease.ID, "payment": payment.ID}).
			Info("payment already corrected, skipping")
		return nil
	}

	if inst.Balance.GreaterThan(decimal.Zero) {
		c.log.Infof("Lease contract's %s payment %s is still missing %s euros", lease.ID, payment.ID, inst.Balance)
	}

	if event.DaysLate > 0 {
		// Never compute a penalty against a negative/overpaid balance.
		balance := inst.Balance
		if !balance.GreaterThan(decimal.Zero) {
			balance = inst.Payment
		}
		lateInterest := LateInterest(balance, lease.NominalRatePct, event.DaysLate)

		lease.Totals.TotalInterest = lease.Totals.TotalInterest.Add(lateInterest)
		inst.LateInterest = lateInterest

		if _, err := c.ledger.Record(payment, lease, inst); err != nil {
			return err
		}
		c.log.Infof("Lease contract's %s payment %s is %d days late and gets %s euros of additional interest", lease.ID, payment.ID, event.DaysLate, lateInterest)
	}

	return nil
}
