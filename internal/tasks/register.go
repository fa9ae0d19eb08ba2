package tasks

import (
	"github.com/motorsales/vsms/internal/notifications"
	"github.com/motorsales/vsms/internal/worker"
)

// Register binds every job type to its handler. Sweeps run inside the job's tenant scope;
// delivery opens its own scopes per channel.
func Register(reg *worker.Registry, scoper worker.Scoper, d *Deliverer, s *Sweeps) {
	reg.Register(notifications.DeliverJobType, d.Handle)
	reg.Register(PaymentReminderSweep, worker.Scoped(scoper, s.PaymentReminders))
	reg.Register(InsuranceExpirySweep, worker.Scoped(scoper, s.InsuranceExpiry))
	reg.Register(NotificationCleanup, worker.Scoped(scoper, s.CleanupNotifications))
	reg.Register(PendingNotifications, worker.Scoped(scoper, s.ResendPending))
}
