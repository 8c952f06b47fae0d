package web

import (
	"context"

	"github.com/oarkflow/frame"
	"github.com/oarkflow/frame/middlewares/server/cors"
	"github.com/oarkflow/frame/middlewares/server/monitor"
	"github.com/oarkflow/frame/pkg/protocol/consts"
	"github.com/oarkflow/frame/pkg/route"
	"github.com/oarkflow/frame/server"
	"github.com/oarkflow/log"

	"github.com/oarkflow/logview"
	"github.com/oarkflow/logview/codec"
)

type LogController struct {
	session *logview.Session
}

func NewLogController(session *logview.Session) *LogController {
	return &LogController{session: session}
}

// Open attaches a file and kicks off a full index in the background. The
// caller polls the status endpoint or fetches lines while indexing runs.
func (c *LogController) Open(_ context.Context, ctx *frame.Context) {
	var req OpenRequest
	if err := ctx.Bind(&req); err != nil || req.Path == "" {
		Failed(ctx, consts.StatusBadRequest, "path not provided")
		return
	}
	var forced *codec.Codec
	if req.Encoding != "" {
		enc, ok := codec.Lookup(req.Encoding)
		if !ok {
			Failed(ctx, consts.StatusBadRequest, "unknown encoding "+req.Encoding)
			return
		}
		forced = enc
	}
	f, err := c.session.Open(req.Path)
	if err != nil {
		Failed(ctx, consts.StatusBadRequest, err.Error())
		return
	}
	if forced != nil {
		f.Data.ForceEncoding(forced)
	}
	if err := f.Worker.IndexAll(forced); err != nil {
		Failed(ctx, consts.StatusBadRequest, err.Error())
		return
	}
	log.Info().Str("path", req.Path).Str("id", f.ID).Msg("indexing started")
	Success(ctx, consts.StatusOK, f.Status(), "Indexing started in background")
}

func (c *LogController) List(_ context.Context, ctx *frame.Context) {
	var statuses []logview.Status
	c.session.ForEach(func(f *logview.OpenFile) bool {
		statuses = append(statuses, f.Status())
		return true
	})
	Success(ctx, consts.StatusOK, statuses)
}

func (c *LogController) Status(_ context.Context, ctx *frame.Context) {
	f, ok := c.session.Get(ctx.Param("id"))
	if !ok {
		Failed(ctx, consts.StatusNotFound, "file not found")
		return
	}
	Success(ctx, consts.StatusOK, f.Status())
}

func (c *LogController) Lines(_ context.Context, ctx *frame.Context) {
	var q LinesQuery
	if err := ctx.Bind(&q); err != nil {
		Failed(ctx, consts.StatusBadRequest, err.Error())
		return
	}
	if q.Count <= 0 {
		q.Count = 100
	}
	lines, err := c.session.GetLines(ctx.Param("id"), q.First, q.Count)
	if err != nil {
		Failed(ctx, consts.StatusBadRequest, err.Error())
		return
	}
	Success(ctx, consts.StatusOK, map[string]any{
		"first": q.First,
		"count": len(lines),
		"lines": lines,
	})
}

// Refresh runs a partial index from the indexed end.
func (c *LogController) Refresh(_ context.Context, ctx *frame.Context) {
	c.command(ctx, func(f *logview.OpenFile) error {
		return f.Worker.IndexAdditionalLines()
	}, "Partial indexing started")
}

// Reindex discards the index and rebuilds it from scratch.
func (c *LogController) Reindex(_ context.Context, ctx *frame.Context) {
	c.command(ctx, func(f *logview.OpenFile) error {
		return f.Worker.IndexAll()
	}, "Full indexing started")
}

// Check probes the file for changes without touching the index.
func (c *LogController) Check(_ context.Context, ctx *frame.Context) {
	c.command(ctx, func(f *logview.OpenFile) error {
		return f.Worker.CheckFileChanges()
	}, "Change probe started")
}

func (c *LogController) Interrupt(_ context.Context, ctx *frame.Context) {
	f, ok := c.session.Get(ctx.Param("id"))
	if !ok {
		Failed(ctx, consts.StatusNotFound, "file not found")
		return
	}
	f.Worker.Interrupt()
	Success(ctx, consts.StatusOK, nil, "Interrupt requested")
}

func (c *LogController) ForceEncoding(_ context.Context, ctx *frame.Context) {
	var req EncodingRequest
	if err := ctx.Bind(&req); err != nil {
		Failed(ctx, consts.StatusBadRequest, err.Error())
		return
	}
	if err := c.session.ForceEncoding(ctx.Param("id"), req.Name); err != nil {
		Failed(ctx, consts.StatusBadRequest, err.Error())
		return
	}
	Success(ctx, consts.StatusOK, nil, "Encoding forced")
}

func (c *LogController) Close(_ context.Context, ctx *frame.Context) {
	if err := c.session.Close(ctx.Param("id")); err != nil {
		Failed(ctx, consts.StatusNotFound, err.Error())
		return
	}
	Success(ctx, consts.StatusOK, nil, "File closed")
}

func (c *LogController) command(ctx *frame.Context, fn func(*logview.OpenFile) error, message string) {
	f, ok := c.session.Get(ctx.Param("id"))
	if !ok {
		Failed(ctx, consts.StatusNotFound, "file not found")
		return
	}
	if err := fn(f); err != nil {
		Failed(ctx, consts.StatusConflict, err.Error())
		return
	}
	Success(ctx, consts.StatusOK, f.Status(), message)
}

func LogRoutes(r route.IRouter, controller *LogController) route.IRouter {
	r.POST("/logs", controller.Open)
	r.GET("/logs", controller.List)
	r.GET("/logs/:id", controller.Status)
	r.GET("/logs/:id/lines", controller.Lines)
	r.POST("/logs/:id/refresh", controller.Refresh)
	r.POST("/logs/:id/reindex", controller.Reindex)
	r.POST("/logs/:id/check", controller.Check)
	r.POST("/logs/:id/interrupt", controller.Interrupt)
	r.POST("/logs/:id/encoding", controller.ForceEncoding)
	r.DELETE("/logs/:id", controller.Close)
	return r
}

func StartServer(addr string, session *logview.Session) {
	srv := server.New(
		server.WithDisablePrintRoute(true),
		server.WithHostPorts(addr),
		server.WithHandleMethodNotAllowed(true),
	)
	srv.Use(cors.Default())
	srv.GET("/monitor", monitor.New())
	LogRoutes(srv.Group("/"), NewLogController(session))
	srv.Spin()
}
