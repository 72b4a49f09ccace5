package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"scanrouter/internal/daemon"
	"scanrouter/internal/journal"
	"scanrouter/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Scanrouter", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockFilePath
	resp.JournalDBPath = status.JournalDBPath
	resp.AuditLogPath = status.AuditLogPath
	resp.Processed = status.Processed
	resp.Failed = status.Failed
	resp.Stalled = status.Stalled
	resp.JobStats = status.JobStats
	resp.Sites = make([]SiteStatus, 0, len(status.Sites))
	for _, site := range status.Sites {
		resp.Sites = append(resp.Sites, SiteStatus{
			Site:      site.Site,
			Processed: site.Processed,
			Failed:    site.Failed,
			Stalled:   site.Stalled,
		})
	}
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	var state journal.State
	if req.State != "" {
		parsed, ok := journal.ParseState(req.State)
		if !ok {
			return fmt.Errorf("unknown state %q", req.State)
		}
		state = parsed
	}
	jobs, err := s.daemon.RecentJobs(s.ctx, req.Limit, req.Site, state)
	if err != nil {
		return err
	}
	resp.Jobs = make([]JobRecord, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		resp.Jobs = append(resp.Jobs, JobRecord{
			ID:           job.ID,
			Site:         job.Site,
			ScanFile:     job.ScanFile,
			PrintID:      job.PrintID,
			Printer:      job.Printer,
			Copies:       job.Copies,
			SpoolerJobID: job.SpoolerJobID,
			State:        string(job.State),
			ErrorMessage: job.ErrorMessage,
			CreatedAt:    job.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
		})
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
