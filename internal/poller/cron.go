package poller

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule — расписание опроса по умолчанию.
const DefaultSchedule = "@every 1m"

// cronParser — парсер расписаний: пятипольные выражения и дескрипторы (@every, @hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule проверяет расписание опроса.
func ValidateSchedule(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", spec, err)
	}
	return nil
}

// Run запускает Tick по расписанию до отмены ctx.
// Тики не перекрываются: если предыдущий ещё идёт, очередной пропускается.
func (p *Poller) Run(ctx context.Context, spec string) error {
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(spec, func() {
		if err := p.Tick(ctx); err != nil {
			p.logger.Error("poll tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", spec, err)
	}

	p.logger.Info("poller started", "schedule", spec)
	c.Start()
	<-ctx.Done()

	// ждём текущий тик
	<-c.Stop().Done()
	p.logger.Info("poller stopped")
	return nil
}
