package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/purpose168/chorus/internal/pubsub"
)

const subscriberSendTimeout = 2 * time.Second

// Events 汇总会话、消息、检查点与通知事件，供聊天界面消费
// 消费过慢时事件会被丢弃
func (app *App) Events() <-chan any {
	return app.events
}

func (app *App) setupEvents() {
	ctx, cancel := context.WithCancel(app.globalCtx)
	app.eventsCtx = ctx
	setupSubscriber(ctx, app.serviceEventsWG, "sessions", app.Sessions.SessionEvents().Subscribe, app.events)
	setupSubscriber(ctx, app.serviceEventsWG, "messages", app.Sessions.MessageEvents().Subscribe, app.events)
	setupSubscriber(ctx, app.serviceEventsWG, "checkpoints", app.Checkpoints.Subscribe, app.events)
	setupSubscriber(ctx, app.serviceEventsWG, "notifications", app.Orchestrator.Notifications().Subscribe, app.events)
	cleanupFunc := func(context.Context) error {
		cancel()
		app.serviceEventsWG.Wait()
		return nil
	}
	app.cleanupFuncs = append(app.cleanupFuncs, cleanupFunc)
}

func setupSubscriber[T any](
	ctx context.Context,
	wg *sync.WaitGroup,
	name string,
	subscriber func(context.Context) <-chan pubsub.Event[T],
	outputCh chan<- any,
) {
	// 同步订阅，New 返回后发布的事件不会丢失
	subCh := subscriber(ctx)
	wg.Go(func() {
		sendTimer := time.NewTimer(0)
		<-sendTimer.C
		defer sendTimer.Stop()

		for {
			select {
			case event, ok := <-subCh:
				if !ok {
					slog.Debug("订阅通道已关闭", "name", name)
					return
				}
				if !sendTimer.Stop() {
					select {
					case <-sendTimer.C:
					default:
					}
				}
				sendTimer.Reset(subscriberSendTimeout)

				select {
				case outputCh <- event:
				case <-sendTimer.C:
					slog.Debug("消息因消费者缓慢而丢弃", "name", name)
				case <-ctx.Done():
					slog.Debug("订阅已取消", "name", name)
					return
				}
			case <-ctx.Done():
				slog.Debug("订阅已取消", "name", name)
				return
			}
		}
	})
}
