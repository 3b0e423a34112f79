package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"xdao.co/origin/codec"
	"xdao.co/origin/model"
)

type registerResponse struct {
	model.RegisterResult
	// Hash and TxHash mirror Digest and RecordRef for older clients.
	Hash   string `json:"hash"`
	TxHash string `json:"txHash"`
}

type verifyResponse struct {
	model.VerifyResult
	Hash string `json:"hash"`
}

var (
	errRegistryNotConfigured = model.NewError(model.KindNotConfigured, "registry not configured")
	errCodecNotConfigured    = model.NewError(model.KindNotConfigured, "watermark engine not configured")
	errFileRequired          = model.NewError(model.KindValidation, "file required")
	errKeyRequired           = model.NewError(model.KindValidation, "key required")
)

// upload returns the multipart "file" field.
func upload(c *gin.Context) (*multipart.FileHeader, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errFileRequired
	}
	return fh, nil
}

// formValue returns the first non-empty value among a field and its aliases.
func formValue(c *gin.Context, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(c.PostForm(n)); v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) handleEmbed(media codec.Media) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.codec == nil {
			fail(c, errCodecNotConfigured)
			return
		}
		fh, err := upload(c)
		if err != nil {
			fail(c, err)
			return
		}
		key := c.PostForm("key")
		if strings.TrimSpace(key) == "" {
			fail(c, errKeyRequired)
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, model.WrapError(model.KindInternal, "failed to read upload", err))
			return
		}
		defer f.Close()

		req := codec.EmbedRequest{
			Media:    media,
			Input:    f,
			Filename: fh.Filename,
			Text:     c.PostForm("text"),
			Key:      key,
			Strength: codec.NormalizeStrength(media, formValue(c, "strength", "q")),
		}
		if media == codec.MediaVideo {
			req.FrameStride = codec.NormalizeFrameStride(formValue(c, "frameStride", "every"))
		}
		res, err := s.codec.Embed(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		defer res.Close()

		out, err := res.Open()
		if err != nil {
			fail(c, model.WrapError(model.KindInternal, "failed to read watermarked output", err))
			return
		}
		defer out.Close()

		name := "watermarked" + strings.ToLower(filepath.Ext(res.Path))
		c.DataFromReader(http.StatusOK, res.Size, res.ContentType, out, map[string]string{
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
		})
	}
}

func (s *Server) handleExtract(media codec.Media) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.codec == nil {
			fail(c, errCodecNotConfigured)
			return
		}
		fh, err := upload(c)
		if err != nil {
			fail(c, err)
			return
		}
		key := c.PostForm("key")
		if strings.TrimSpace(key) == "" {
			fail(c, errKeyRequired)
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, model.WrapError(model.KindInternal, "failed to read upload", err))
			return
		}
		defer f.Close()

		req := codec.ExtractRequest{
			Media:    media,
			Input:    f,
			Filename: fh.Filename,
			Key:      key,
			Strength: codec.NormalizeStrength(media, formValue(c, "strength", "q")),
		}
		if media == codec.MediaVideo {
			req.FrameStride = codec.NormalizeFrameStride(formValue(c, "frameStride", "every"))
			req.MaxSamples = codec.NormalizeMaxSamples(formValue(c, "maxSamples", "max_samples"))
		}
		text, err := s.codec.Extract(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, model.ExtractResult{Text: text})
	}
}

func (s *Server) handleRegister(c *gin.Context) {
	if !s.proof.Configured() {
		fail(c, errRegistryNotConfigured)
		return
	}
	fh, err := upload(c)
	if err != nil {
		fail(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, model.WrapError(model.KindInternal, "failed to read upload", err))
		return
	}
	defer f.Close()

	res, err := s.proof.RegisterReader(c.Request.Context(), f, "", c.PostForm("note"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, registerResponse{RegisterResult: res, Hash: res.Digest, TxHash: res.RecordRef})
}

func (s *Server) handleVerify(c *gin.Context) {
	if !s.proof.Configured() {
		fail(c, errRegistryNotConfigured)
		return
	}
	fh, err := upload(c)
	if err != nil {
		fail(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, model.WrapError(model.KindInternal, "failed to read upload", err))
		return
	}
	defer f.Close()

	res, err := s.proof.VerifyReader(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyResponse{VerifyResult: res, Hash: res.Digest})
}

func (s *Server) handleRecord(c *gin.Context) {
	res, err := s.proof.VerifyDigest(c.Request.Context(), c.Param("digest"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyResponse{VerifyResult: res, Hash: res.Digest})
}

func (s *Server) handleStatus(c *gin.Context) {
	st := model.Status{
		Registry: s.proof.State(),
		Backend:  s.proof.Backend(),
		Owner:    s.proof.Owner(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}
	if s.codec != nil {
		st.Workers = s.codec.Workers()
	}
	c.JSON(http.StatusOK, st)
}
