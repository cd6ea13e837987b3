// Package mcpserver exposes capture analysis as MCP tools.
package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/danpilch/threadscope/pkg/flamegraph"
	"github.com/danpilch/threadscope/pkg/output"
	"github.com/danpilch/threadscope/pkg/tracefile"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Server answers tool calls about capture files. Summaries of loaded
// captures are cached by path.
type Server struct {
	mcp    *server.MCPServer
	logger *logrus.Logger

	mu    sync.Mutex
	cache map[string]*output.Summary
}

// New creates a server with every tool registered.
func New(logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	s := &Server{
		mcp: server.NewMCPServer(
			"threadscope",
			Version,
			server.WithLogging(),
		),
		logger: logger,
		cache:  make(map[string]*output.Summary),
	}
	s.register()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves requests on stdin and stdout until stdin is closed.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) register() {
	s.mcp.AddTool(mcp.NewTool("load_capture",
		mcp.WithDescription("Load a threadscope capture file and cache its summary"),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the capture file"),
		),
	), s.handleLoad)

	s.mcp.AddTool(mcp.NewTool("capture_summary",
		mcp.WithDescription("Summarize a capture: thread states, busiest threads, hot frames and suggested next steps. Loads the capture if needed."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the capture file"),
		),
	), s.handleSummary)

	s.mcp.AddTool(mcp.NewTool("hot_frames",
		mcp.WithDescription("List the frames where the most samples ended. These are where threads actually spend their time."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the capture file"),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Number of frames to return (default: 10)"),
		),
	), s.handleHotFrames)

	s.mcp.AddTool(mcp.NewTool("render_flame",
		mcp.WithDescription("Render a capture as an SVG flame graph"),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the capture file"),
		),
		mcp.WithString("output_path",
			mcp.Required(),
			mcp.Description("Where to write the SVG"),
		),
		mcp.WithNumber("width",
			mcp.Description("Image width in pixels (default: 1200)"),
		),
	), s.handleRenderFlame)
}

// load summarizes the capture at path, caching the result.
func (s *Server) load(path string, opts output.SummaryOptions) (*output.Summary, error) {
	f, err := tracefile.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sum, err := output.Summarize(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.logger.WithFields(logrus.Fields{
		"path":    path,
		"records": sum.Records,
		"threads": sum.Threads,
	}).Info("Capture loaded")
	return sum, nil
}

func (s *Server) cached(path string) (*output.Summary, error) {
	s.mu.Lock()
	sum, ok := s.cache[path]
	s.mu.Unlock()
	if ok {
		return sum, nil
	}
	sum, err := s.load(path, output.DefaultSummaryOptions())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[path] = sum
	s.mu.Unlock()
	return sum, nil
}

func (s *Server) handleLoad(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sum, err := s.load(filePath, output.DefaultSummaryOptions())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load capture: %v", err)), nil
	}
	s.mu.Lock()
	s.cache[filePath] = sum
	s.mu.Unlock()

	result := fmt.Sprintf(`Capture loaded successfully!

File: %s
Records: %d
Threads: %d
Span: %dms

Use other tools to analyze this capture.
`, filePath, sum.Records, sum.Threads, sum.SpanMillis)
	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sum, err := s.cached(filePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load capture: %v", err)), nil
	}

	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatAI, &buf)
	f.SetCapturePath(filePath)
	if err := f.Render(sum); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) handleHotFrames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topN := request.GetInt("top_n", 10)
	if topN <= 0 {
		return mcp.NewToolResultError("top_n must be positive"), nil
	}

	sum, err := s.load(filePath, output.SummaryOptions{TopFrames: topN, TopThreads: 1})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load capture: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("HOT FRAMES (where samples end)\n")
	sb.WriteString("═══════════════════════════════════════════════════\n\n")
	if len(sum.HotFrames) == 0 {
		sb.WriteString("No stack samples found.\n")
	}
	for i, h := range sum.HotFrames {
		fmt.Fprintf(&sb, "#%d: %s\n", i+1, h.Frame)
		fmt.Fprintf(&sb, "    Samples: %d (%.2f%%)\n\n", h.Samples, h.Percent)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleRenderFlame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outPath, err := request.RequireString("output_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := flamegraph.DefaultSVGOptions()
	opts.Width = request.GetInt("width", opts.Width)
	if opts.Width <= 0 {
		return mcp.NewToolResultError("width must be positive"), nil
	}

	in, err := tracefile.Open(filePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load capture: %v", err)), nil
	}
	defer in.Close()

	tree := flamegraph.NewTree(nil)
	if _, err := tree.FeedAll(in); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read capture: %v", err)), nil
	}

	var buf bytes.Buffer
	if err := flamegraph.Render(&buf, tree, opts); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to render: %v", err)), nil
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to write %s: %v", outPath, err)), nil
	}

	s.logger.WithFields(logrus.Fields{
		"path":   outPath,
		"events": tree.Events(),
	}).Info("Flame graph written")
	return mcp.NewToolResultText(fmt.Sprintf("Flame graph of %d records written to %s (%d bytes)\n",
		tree.Events(), outPath, buf.Len())), nil
}
