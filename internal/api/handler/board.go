package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/api/models"
	"github.com/polaris-class/clubhouse/internal/board"
	domain "github.com/polaris-class/clubhouse/internal/models"
	"github.com/samber/lo"
)

// maxImages is the number of images accepted with one post.
const maxImages = 5

// ListPosts returns the posts visible to the user.
func (h *Handler) ListPosts(c *gin.Context) {
	var f board.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, "Invalid filter")
		return
	}
	posts, err := h.engine.Board.List(c.Request.Context(), auth.ActorOf(c), f)
	if err != nil {
		respondError(c, err, "load posts")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"posts":   models.ToPostItems(posts, h.now()),
	})
}

// GetPost returns a post with its comments.
func (h *Handler) GetPost(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	actor := auth.ActorOf(c)
	post, err := h.engine.Board.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err, "load post")
		return
	}
	comments, err := h.engine.Board.Comments(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err, "load comments")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"post":     models.ToPostItem(post, h.now()),
		"comments": lo.Ternary(comments == nil, []domain.Comment{}, comments),
	})
}

// CreatePost stores a post. It accepts JSON or a multipart form with up to five
// files in the images field.
func (h *Handler) CreatePost(c *gin.Context) {
	var in board.Input
	var files []*multipart.FileHeader

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			badRequest(c, "Invalid form")
			return
		}
		in = board.Input{
			Title:    c.PostForm("title"),
			Content:  c.PostForm("content"),
			Club:     c.PostForm("club"),
			Tags:     strings.Split(c.PostForm("tags"), ","),
			PostType: domain.PostType(c.PostForm("postType")),
		}
		files = form.File["images"]
	} else if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid post")
		return
	}
	if len(files) > maxImages {
		badRequest(c, "Too many images")
		return
	}

	var opened []io.Closer
	defer func() {
		for _, f := range opened {
			if err := f.Close(); err != nil {
				log.Warn("Failed to close upload", "error", err)
			}
		}
	}()
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "Invalid image "+fh.Filename)
			return
		}
		opened = append(opened, f)
		in.Images = append(in.Images, board.Image{Name: fh.Filename, Data: f})
	}

	post, err := h.engine.Board.Create(c.Request.Context(), auth.ActorOf(c), in)
	if err != nil {
		respondError(c, err, "create post")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"post":    models.ToPostItem(post, h.now()),
	})
}

// EditPost applies a partial update to a post.
func (h *Handler) EditPost(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var patch board.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid post")
		return
	}
	post, err := h.engine.Board.Edit(c.Request.Context(), auth.ActorOf(c), id, patch)
	if err != nil {
		respondError(c, err, "edit post")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"post":    models.ToPostItem(post, h.now()),
	})
}

// DeletePost removes a post.
func (h *Handler) DeletePost(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.Board.Delete(c.Request.Context(), auth.ActorOf(c), id); err != nil {
		respondError(c, err, "delete post")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Post deleted",
	})
}

// LikePost adds a like.
func (h *Handler) LikePost(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	likes, err := h.engine.Board.Like(c.Request.Context(), auth.ActorOf(c), id)
	if err != nil {
		respondError(c, err, "like post")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"likes":   likes,
	})
}

// CommentPost adds a comment.
func (h *Handler) CommentPost(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid comment")
		return
	}
	comment, err := h.engine.Board.Comment(c.Request.Context(), auth.ActorOf(c), id, req.Content)
	if err != nil {
		respondError(c, err, "add comment")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"comment": comment,
	})
}

// PostImage serves an uploaded post image.
func (h *Handler) PostImage(c *gin.Context) {
	path, ok := h.engine.Board.ImageFile(strings.TrimPrefix(c.Param("path"), "/"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "image not found",
		})
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.File(path)
}
