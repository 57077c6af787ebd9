package server

import (
	"context"
	"fmt"
	"go/token"
	"io"
	"net/http"

	"github.com/DevSymphony/fillin/internal/pdf"
	"github.com/DevSymphony/fillin/internal/placeholder"
	"github.com/DevSymphony/fillin/internal/render"
	"github.com/DevSymphony/fillin/internal/rule"
	"github.com/DevSymphony/fillin/internal/sampledata"
	"github.com/DevSymphony/fillin/internal/storage"
)

// readUpload returns the bytes and client file name of the "file" part.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", badRequest("invalid multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", badRequest("file is required")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, "", badRequest("failed to read file: %v", err)
	}
	return content, header.Filename, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	content, filename, err := readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tpl, err := s.repo.Upload(r.Context(), storage.UploadRequest{
		Content:     content,
		Filename:    filename,
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Template uploaded",
		"template_id":   tpl.ID,
		"template_name": tpl.Name,
		"file_path":     tpl.FilePath,
		"placeholders":  placeholder.Names(placeholder.Scan(string(content))),
	})
}

type placeholderInfo struct {
	placeholder.Placeholder
	HasRule     bool      `json:"has_rule"`
	RuleType    rule.Kind `json:"rule_type,omitempty"`
	SampleValue string    `json:"sample_value,omitempty"`
}

func (s *Server) handlePlaceholders(w http.ResponseWriter, r *http.Request) {
	snap, err := storage.Load(r.Context(), s.repo, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	infos := make([]placeholderInfo, 0, len(snap.Placeholders))
	for _, p := range snap.Placeholders {
		info := placeholderInfo{Placeholder: p, SampleValue: snap.Data[p.Name]}
		if got, ok := snap.Rules.Get(p.Name); ok {
			info.HasRule = true
			info.RuleType = got.Kind
		}
		infos = append(infos, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"template_id":  snap.Template.ID,
		"placeholders": infos,
	})
}

func (s *Server) handleSampleData(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.repo.Template(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	content, filename, err := readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, err := sampledata.ParseFile(filename, content)
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	if err := s.repo.SaveSampleData(r.Context(), id, data); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Sample data saved",
		"template_id": id,
		"keys":        sampledata.Keys(data),
	})
}

// handleRender answers JSON by default; format=html returns the markup alone.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "preview"
	}
	if mode != "preview" && mode != "editable" {
		s.writeError(w, r, badRequest("unknown mode %q", mode))
		return
	}

	snap, err := storage.Load(r.Context(), s.repo, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]any{"template_id": snap.Template.ID, "mode": mode}
	var markup string
	if mode == "editable" {
		markup = render.Editable(snap.Document, snap.Placeholders, snap.Rules)
	} else {
		res := render.Preview(r.Context(), snap.Document, snap.Placeholders, snap.Rules, s.eval, snap.Data)
		markup = res.HTML
		resp["fields"] = res.Fields
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, markup)
		return
	}
	resp["html"] = markup
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	pkg := r.URL.Query().Get("package")
	if pkg == "" {
		pkg = render.DefaultExportPackage
	}
	if !token.IsIdentifier(pkg) {
		s.writeError(w, r, badRequest("invalid package name %q", pkg))
		return
	}

	snap, err := storage.Load(r.Context(), s.repo, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	src, err := render.Export(pkg, snap.Placeholders, snap.Rules, s.eval)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("export failed: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(src)
}

// previewHTML renders the preview of a stored template.
func (s *Server) previewHTML(ctx context.Context, id string) (string, error) {
	snap, err := storage.Load(ctx, s.repo, id)
	if err != nil {
		return "", err
	}
	return render.Preview(ctx, snap.Document, snap.Placeholders, snap.Rules, s.eval, snap.Data).HTML, nil
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	var body struct {
		HTML       string `json:"html"`
		TemplateID string `json:"template_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	if body.HTML == "" && body.TemplateID != "" {
		markup, err := s.previewHTML(r.Context(), body.TemplateID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		body.HTML = markup
	}
	if body.HTML == "" {
		s.writeError(w, r, badRequest("html required in body"))
		return
	}
	if s.pdf == nil {
		s.writeError(w, r, pdf.ErrNoBrowser)
		return
	}

	out, err := s.pdf.Render(r.Context(), body.HTML)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("PDF conversion failed: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="document.pdf"`)
	_, _ = w.Write(out)
}
