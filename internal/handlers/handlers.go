package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/example/recognizeim/internal/auth"
	"github.com/example/recognizeim/internal/usecase"
	"github.com/example/recognizeim/sdk/recognize"
)

// MaxUploadSize is the largest image accepted by any recognition mode.
const MaxUploadSize = 3_500_000

// multipartSlack covers multipart headers and the small form fields sent
// alongside the image.
const multipartSlack = 64 << 10

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
}

type updateImageRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type callbackRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Every route except
// /health runs behind authMiddleware; corpus changes also need the
// images:write scope.
func RegisterRoutes(router *gin.Engine, uc *usecase.RecognitionUseCase, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/", authMiddleware)
	write := api.Group("/", auth.RequireScope(auth.ScopeImagesWrite))

	api.POST("/recognize", func(c *gin.Context) {
		data, ok := readImage(c)
		if !ok {
			return
		}

		mode, err := recognize.ParseMode(c.PostForm("mode"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		all := false
		if raw := c.PostForm("all"); raw != "" {
			if all, err = strconv.ParseBool(raw); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "all must be a boolean"})
				return
			}
		}

		userID, _ := auth.GetUserID(c.Request.Context())
		rec, err := uc.Recognize(c.Request.Context(), userID, data, mode, all)
		if err != nil {
			respondError(c, err)
			return
		}

		raw, err := json.Marshal(rec.Result)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode result"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"request_id": rec.RequestID,
			"hash":       rec.Hash,
			"cached":     rec.Cached,
			"result":     json.RawMessage(raw),
		})
	})

	write.POST("/images", func(c *gin.Context) {
		data, ok := readImage(c)
		if !ok {
			return
		}

		imageID := c.PostForm("id")
		imageName := c.PostForm("name")
		if imageID == "" || imageName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id and name are required"})
			return
		}

		respond(c)(uc.InsertImage(c.Request.Context(), imageID, imageName, data))
	})

	write.PATCH("/images/:id", func(c *gin.Context) {
		var req updateImageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respond(c)(uc.UpdateImage(c.Request.Context(), c.Param("id"), req.ID, req.Name))
	})

	write.DELETE("/images/:id", func(c *gin.Context) {
		respond(c)(uc.DeleteImage(c.Request.Context(), c.Param("id")))
	})

	write.DELETE("/images", func(c *gin.Context) {
		respond(c)(uc.DeleteImage(c.Request.Context(), ""))
	})

	write.POST("/index/build", func(c *gin.Context) {
		respond(c)(uc.BuildIndex(c.Request.Context()))
	})

	api.GET("/index/status", func(c *gin.Context) {
		respond(c)(uc.IndexStatus(c.Request.Context()))
	})

	api.GET("/limits", func(c *gin.Context) {
		respond(c)(uc.UserLimits(c.Request.Context()))
	})

	api.GET("/mode", func(c *gin.Context) {
		respond(c)(uc.GetMode(c.Request.Context()))
	})

	write.PUT("/mode", func(c *gin.Context) {
		var req modeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		mode, err := recognize.ParseMode(req.Mode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respond(c)(uc.ChangeMode(c.Request.Context(), mode))
	})

	write.PUT("/callback", func(c *gin.Context) {
		var req callbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respond(c)(uc.RegisterCallback(c.Request.Context(), req.URL))
	})

	api.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// readImage extracts the "image" part of a multipart upload. On failure it
// writes the response and reports false.
func readImage(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartSlack)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return nil, false
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return nil, false
	}
	if _, ok := allowedImageTypes[file.Header.Get("Content-Type")]; !ok {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type"})
		return nil, false
	}

	data, err := readFile(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return nil, false
	}
	return data, true
}

func readFile(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func respond(c *gin.Context) func(recognize.Response, error) {
	return func(resp recognize.Response, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, recognize.ErrImageLimits):
		return http.StatusUnprocessableEntity
	case errors.Is(err, recognize.ErrTransport), errors.Is(err, recognize.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
