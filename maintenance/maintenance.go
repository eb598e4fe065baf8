package maintenance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/util"
	"go.uber.org/zap"
)

// Controller is the process wide pause switch. Consumers idle while it is on.
type Controller struct {
	on atomic.Bool
}

func NewController() *Controller {
	return &Controller{}
}

func (c *Controller) IsOn() bool {
	return c.on.Load()
}

func (c *Controller) Set(on bool) {
	if c.on.Swap(on) != on {
		logger.Info("maintenance mode changed", zap.Bool("on", on))
	}
}

// Poller refreshes a Controller from the shared maintenance flag so that every
// node pauses together.
type Poller struct {
	controller *Controller
	store      persistence.MaintenanceStore
	tw         *util.TickWorker
}

func NewPoller(controller *Controller, store persistence.MaintenanceStore, interval time.Duration, wg *sync.WaitGroup) *Poller {
	p := &Poller{
		controller: controller,
		store:      store,
	}
	p.tw = util.NewTickWorker("maintenance-poller", interval, p.Refresh, wg)
	return p
}

func (p *Poller) Refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	on, err := p.store.GetMaintenance(ctx)
	if err != nil {
		logger.Error("error reading maintenance flag", zap.Error(err))
		return
	}
	p.controller.Set(on)
}

// Toggle writes the shared flag and applies it locally.
func (p *Poller) Toggle(ctx context.Context, on bool) error {
	if err := p.store.SetMaintenance(ctx, on); err != nil {
		return err
	}
	p.controller.Set(on)
	return nil
}

func (p *Poller) Start() {
	p.Refresh()
	p.tw.Start()
}

func (p *Poller) Stop() error {
	return p.tw.Stop()
}
