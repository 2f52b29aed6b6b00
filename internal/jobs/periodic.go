package jobs

import (
	"time"

	"github.com/riverqueue/river"
)

// Intervals sets how often each sweep runs.
type Intervals struct {
	PaymentTimeout    time.Duration
	DJResponseTimeout time.Duration
	EventStarted      time.Duration
	Payout            time.Duration
	RatingWindow      time.Duration

	AwaitingAcceptanceReminders time.Duration
	BeforeEventReminders        time.Duration
	RatingReminders             time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		PaymentTimeout:    time.Minute,
		DJResponseTimeout: 5 * time.Minute,
		EventStarted:      5 * time.Minute,
		Payout:            time.Hour,
		RatingWindow:      time.Hour,

		AwaitingAcceptanceReminders: 15 * time.Minute,
		BeforeEventReminders:        15 * time.Minute,
		RatingReminders:             15 * time.Minute,
	}
}

func periodic(every time.Duration, args river.JobArgs) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(every),
		func() (river.JobArgs, *river.InsertOpts) { return args, nil },
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}

// PeriodicJobs schedules every sweep.
func PeriodicJobs(iv Intervals) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		periodic(iv.PaymentTimeout, PaymentTimeoutArgs{}),
		periodic(iv.DJResponseTimeout, DJResponseTimeoutArgs{}),
		periodic(iv.EventStarted, EventStartedArgs{}),
		periodic(iv.Payout, PayoutArgs{}),
		periodic(iv.RatingWindow, RatingWindowArgs{}),
		periodic(iv.AwaitingAcceptanceReminders, AwaitingAcceptanceRemindersArgs{}),
		periodic(iv.BeforeEventReminders, BeforeEventRemindersArgs{}),
		periodic(iv.RatingReminders, RatingRemindersArgs{}),
	}
}

// AddWorkers registers the side effect worker and every sweep worker.
func AddWorkers(workers *river.Workers, events *BookingEventWorker, s *Sweeper) {
	river.AddWorker(workers, events)
	river.AddWorker(workers, &PaymentTimeoutWorker{s: s})
	river.AddWorker(workers, &DJResponseTimeoutWorker{s: s})
	river.AddWorker(workers, &EventStartedWorker{s: s})
	river.AddWorker(workers, &PayoutWorker{s: s})
	river.AddWorker(workers, &RatingWindowWorker{s: s})
	river.AddWorker(workers, &AwaitingAcceptanceRemindersWorker{s: s})
	river.AddWorker(workers, &BeforeEventRemindersWorker{s: s})
	river.AddWorker(workers, &RatingRemindersWorker{s: s})
}
