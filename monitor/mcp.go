package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/trustwatch/kit"
)

// RegisterMCP registers all trustwatch tools on an MCP server, giving
// assistants the same surface the HTTP API exposes.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerAddVendor(srv)
	s.registerListVendors(srv)
	s.registerDeleteVendor(srv)
	s.registerAddPage(srv)
	s.registerListPages(srv)
	s.registerSetPageStatus(srv)
	s.registerDeletePage(srv)
	s.registerCheckPage(srv)
	s.registerCheckVendor(srv)
	s.registerSetBaseline(srv)
	s.registerSeedArchive(srv)
	s.registerListEvents(srv)
	s.registerGetEvent(srv)
	s.registerSetVerdict(srv)
	s.registerSnapshotText(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func decodeInto[T any]() func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p T
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}
}

type okResponse struct {
	OK bool `json:"ok"`
}

// --- Vendors ---

func (s *Service) registerAddVendor(srv *mcp.Server) {
	type req struct {
		Name    string `json:"name"`
		Website string `json:"website"`
		Notes   string `json:"notes"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_add_vendor",
		Description: "Register a vendor whose trust pages will be monitored",
		InputSchema: inputSchema(map[string]any{
			"name":    map[string]any{"type": "string", "description": "Vendor name"},
			"website": map[string]any{"type": "string", "description": "Vendor website URL (optional)"},
			"notes":   map[string]any{"type": "string", "description": "Free-form notes (optional)"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.CreateVendor(ctx, p.Name, p.Website, p.Notes)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerListVendors(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "trustwatch_list_vendors",
		Description: "List monitored vendors with page and pending-review counts",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.ListVendors(ctx)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerDeleteVendor(srv *mcp.Server) {
	type req struct {
		VendorID string `json:"vendor_id"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_delete_vendor",
		Description: "Delete a vendor and all its watched pages and history",
		InputSchema: inputSchema(map[string]any{
			"vendor_id": map[string]any{"type": "string", "description": "Vendor ID"},
		}, []string{"vendor_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := s.DeleteVendor(ctx, p.VendorID); err != nil {
			return nil, err
		}
		return okResponse{OK: true}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

// --- Pages ---

func (s *Service) registerAddPage(srv *mcp.Server) {
	type req struct {
		VendorID     string   `json:"vendor_id"`
		URL          string   `json:"url"`
		Label        string   `json:"label"`
		Fingerprints []string `json:"fingerprint_phrases"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_add_page",
		Description: "Watch a trust page (privacy policy, ToS, AI statement) under a vendor",
		InputSchema: inputSchema(map[string]any{
			"vendor_id": map[string]any{"type": "string", "description": "Vendor ID"},
			"url":       map[string]any{"type": "string", "description": "Page URL to watch"},
			"label":     map[string]any{"type": "string", "description": "Human label, e.g. 'Privacy Policy'"},
			"fingerprint_phrases": map[string]any{
				"type": "array", "items": map[string]any{"type": "string"},
				"description": "Phrases that must appear in every trusted capture",
			},
		}, []string{"vendor_id", "url"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.AddPage(ctx, p.VendorID, p.URL, p.Label, p.Fingerprints)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerListPages(srv *mcp.Server) {
	type req struct {
		VendorID string `json:"vendor_id"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_list_pages",
		Description: "List a vendor's watched pages with check status",
		InputSchema: inputSchema(map[string]any{
			"vendor_id": map[string]any{"type": "string", "description": "Vendor ID"},
		}, []string{"vendor_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.ListPages(ctx, p.VendorID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerSetPageStatus(srv *mcp.Server) {
	type req struct {
		PageID string `json:"page_id"`
		Paused bool   `json:"paused"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_set_page_status",
		Description: "Pause or resume checking of a watched page",
		InputSchema: inputSchema(map[string]any{
			"page_id": map[string]any{"type": "string", "description": "Page ID"},
			"paused":  map[string]any{"type": "boolean", "description": "true to pause, false to resume"},
		}, []string{"page_id", "paused"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		var err error
		if p.Paused {
			err = s.PausePage(ctx, p.PageID)
		} else {
			err = s.ResumePage(ctx, p.PageID)
		}
		if err != nil {
			return nil, err
		}
		return okResponse{OK: true}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerDeletePage(srv *mcp.Server) {
	type req struct {
		PageID string `json:"page_id"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_delete_page",
		Description: "Stop watching a page and drop its snapshot history",
		InputSchema: inputSchema(map[string]any{
			"page_id": map[string]any{"type": "string", "description": "Page ID"},
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := s.DeletePage(ctx, p.PageID); err != nil {
			return nil, err
		}
		return okResponse{OK: true}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

// --- Checks ---

func (s *Service) registerCheckPage(srv *mcp.Server) {
	type req struct {
		PageID string `json:"page_id"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_check_page",
		Description: "Fetch a watched page now and record a change event if its content moved",
		InputSchema: inputSchema(map[string]any{
			"page_id": map[string]any{"type": "string", "description": "Page ID"},
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.CheckPage(ctx, p.PageID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerCheckVendor(srv *mcp.Server) {
	type req struct {
		VendorID string `json:"vendor_id"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_check_vendor",
		Description: "Check all active pages of a vendor; failures are reported per page",
		InputSchema: inputSchema(map[string]any{
			"vendor_id": map[string]any{"type": "string", "description": "Vendor ID"},
		}, []string{"vendor_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.CheckVendorPages(ctx, p.VendorID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

// --- Baselines ---

func (s *Service) registerSetBaseline(srv *mcp.Server) {
	type req struct {
		PageID   string `json:"page_id"`
		Text     string `json:"text"`
		AsOfDate string `json:"as_of_date"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_set_baseline",
		Description: "Install a manually pasted baseline text for a page; HTML is stripped",
		InputSchema: inputSchema(map[string]any{
			"page_id":    map[string]any{"type": "string", "description": "Page ID"},
			"text":       map[string]any{"type": "string", "description": "Baseline text or HTML"},
			"as_of_date": map[string]any{"type": "string", "description": "Backdate, YYYY-MM-DD (optional)"},
		}, []string{"page_id", "text"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		var asOf time.Time
		if p.AsOfDate != "" {
			t, err := time.Parse("2006-01-02", p.AsOfDate)
			if err != nil {
				return nil, ErrInvalidInput
			}
			asOf = t
		}
		return s.SetManualBaseline(ctx, p.PageID, p.Text, asOf)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerSeedArchive(srv *mcp.Server) {
	type req struct {
		PageID     string `json:"page_id"`
		MonthsBack int    `json:"months_back"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_seed_archive",
		Description: "Seed a page's baseline from the oldest Wayback Machine capture in the window",
		InputSchema: inputSchema(map[string]any{
			"page_id":     map[string]any{"type": "string", "description": "Page ID"},
			"months_back": map[string]any{"type": "integer", "description": "Lookback window in months (default 12)"},
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.SeedFromArchive(ctx, p.PageID, p.MonthsBack)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

// --- Review ---

func (s *Service) registerListEvents(srv *mcp.Server) {
	type req struct {
		Verdict string `json:"verdict"`
		Limit   int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_list_events",
		Description: "List change events newest first, optionally filtered by review verdict",
		InputSchema: inputSchema(map[string]any{
			"verdict": map[string]any{"type": "string", "description": "pending, confirmed, or dismissed (optional)"},
			"limit":   map[string]any{"type": "integer", "description": "Max events (default 100)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.ListChangeEvents(ctx, p.Verdict, p.Limit)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerGetEvent(srv *mcp.Server) {
	type req struct {
		EventID string `json:"event_id"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_get_event",
		Description: "Get one change event with its full before/after texts",
		InputSchema: inputSchema(map[string]any{
			"event_id": map[string]any{"type": "string", "description": "Event ID"},
		}, []string{"event_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.GetChangeEvent(ctx, p.EventID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerSetVerdict(srv *mcp.Server) {
	type req struct {
		EventID string `json:"event_id"`
		Verdict string `json:"verdict"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_set_verdict",
		Description: "Record a review decision on a change event",
		InputSchema: inputSchema(map[string]any{
			"event_id": map[string]any{"type": "string", "description": "Event ID"},
			"verdict":  map[string]any{"type": "string", "description": "confirmed or dismissed"},
		}, []string{"event_id", "verdict"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := s.SetVerdict(ctx, p.EventID, p.Verdict); err != nil {
			return nil, err
		}
		return okResponse{OK: true}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerSnapshotText(srv *mcp.Server) {
	type req struct {
		EventID string `json:"event_id"`
		Side    string `json:"side"`
	}

	tool := &mcp.Tool{
		Name:        "trustwatch_snapshot_text",
		Description: "Return one side of an event's comparison: the previous or current text",
		InputSchema: inputSchema(map[string]any{
			"event_id": map[string]any{"type": "string", "description": "Event ID"},
			"side":     map[string]any{"type": "string", "description": "prev or curr"},
		}, []string{"event_id", "side"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		text, err := s.SnapshotText(ctx, p.EventID, p.Side)
		if err != nil {
			return nil, err
		}
		return map[string]string{"text": text}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}
