// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"fmt"

	"github.com/pdiddy/pliegos/internal/bus"
	"github.com/pdiddy/pliegos/pkg/types"
)

// Handle is the bus receiver. It answers the four message types of the
// popup protocol.
func (o *Orchestrator) Handle(ctx context.Context, msg bus.Message) bus.Response {
	switch msg.Action {
	case bus.ActionOpenTabs:
		if len(msg.URLs) == 0 {
			return bus.Fail(ErrNoURLs)
		}
		tabs, err := o.opts.Provider.Open(ctx, msg.URLs, msg.NewWindow)
		if err != nil {
			return bus.Fail(err)
		}
		return bus.Response{Success: true, TabsOpened: len(tabs)}

	case bus.ActionSearch:
		res, err := o.Start(ctx, StartRequest{Query: msg.Query, URLs: msg.URLs, NewWindow: msg.NewWindow})
		if err != nil {
			return bus.Fail(err)
		}
		return bus.Response{
			Success:    true,
			TabsOpened: res.TabsOpened,
			Message:    "Scraping iniciado",
			RunID:      res.RunID,
		}

	case bus.ActionCompleted:
		o.FoldSuccess(msg.RunID, types.JobResult{
			TabID:     msg.TabID,
			Source:    msg.SourceName,
			Hostname:  msg.Hostname,
			Records:   msg.Records,
			Timestamp: msg.Timestamp,
		})
		return bus.Response{Success: true}

	case bus.ActionFailed:
		o.FoldFailure(msg.RunID, types.JobError{
			TabID:     msg.TabID,
			Source:    msg.SourceName,
			Hostname:  msg.Hostname,
			Error:     msg.Error,
			Timestamp: msg.Timestamp,
		})
		return bus.Response{Success: true}

	default:
		return bus.Fail(fmt.Errorf("unknown action %q", msg.Action))
	}
}
