// Package board implements the club bulletin board.
package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

var (
	// ErrForbidden is returned when a user edits or deletes a post they do not own,
	// or touches a club they cannot see.
	ErrForbidden = errors.New("not allowed to modify this post")
	// ErrInvalidInput is returned when required post fields are missing.
	ErrInvalidInput = errors.New("invalid post")
)

// Sort orders.
const (
	SortNewest   = "newest"
	SortLikes    = "likes"
	SortComments = "comments"
)

// Upload limits.
const (
	MaxImageWidth  = 800
	MaxImageHeight = 600
	UploadDir      = "uploads"
	// imageSeparator joins several stored image paths in the image_path column.
	imageSeparator = ","
)

// Notifier announces new posts.
type Notifier interface {
	Add(ctx context.Context, title, kind, username, message string) (models.Notification, error)
}

// Service manages posts and comments.
type Service struct {
	store    *store.Store
	notifier Notifier
	dataDir  string
}

// New creates a board service. Images are stored below dataDir/uploads.
func New(s *store.Store, n Notifier, dataDir string) *Service {
	return &Service{store: s, notifier: n, dataDir: dataDir}
}

// Filter selects posts.
type Filter struct {
	Club     string          `form:"club"`
	Query    string          `form:"q"`
	Sort     string          `form:"sort"`
	PostType models.PostType `form:"type"`
}

// List returns the posts visible to actor that match f.
func (s *Service) List(ctx context.Context, actor *models.Actor, f Filter) ([]models.Post, error) {
	t, err := s.store.Load(ctx, store.Posts)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))

	posts := lo.Filter(models.DecodeAll[models.Post](t.Rows), func(p models.Post, _ int) bool {
		if !actor.CanSee(p.Club) {
			return false
		}
		if f.Club != "" && f.Club != models.AllClubs && p.Club != f.Club {
			return false
		}
		if f.PostType != "" && p.PostType != f.PostType {
			return false
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Title), q) && !strings.Contains(strings.ToLower(p.Content), q) {
			return false
		}
		return true
	})

	switch f.Sort {
	case SortLikes:
		sort.SliceStable(posts, func(i, j int) bool { return posts[i].Likes > posts[j].Likes })
	case SortComments:
		sort.SliceStable(posts, func(i, j int) bool { return posts[i].Comments > posts[j].Comments })
	default:
		sort.SliceStable(posts, func(i, j int) bool { return posts[i].CreatedDate > posts[j].CreatedDate })
	}
	return posts, nil
}

// Get returns one post visible to actor.
func (s *Service) Get(ctx context.Context, actor *models.Actor, id int) (models.Post, error) {
	t, err := s.store.Load(ctx, store.Posts)
	if err != nil {
		return models.Post{}, err
	}
	rec, ok := t.Find("id", strconv.Itoa(id))
	if !ok {
		return models.Post{}, store.ErrNotFound
	}
	p, err := models.Decode[models.Post](rec)
	if err != nil {
		return models.Post{}, err
	}
	if !actor.CanSee(p.Club) {
		return models.Post{}, ErrForbidden
	}
	return p, nil
}

// Image is an uploaded picture.
type Image struct {
	Name string
	Data io.Reader
}

// Input is a new post.
type Input struct {
	Title    string          `json:"title"`
	Content  string          `json:"content"`
	Club     string          `json:"club"`
	Tags     []string        `json:"tags"`
	PostType models.PostType `json:"postType"`
	Images   []Image         `json:"-"`
}

// JoinTags normalises tags into the stored comma separated form.
func JoinTags(tags []string) string {
	clean := lo.Compact(lo.Map(tags, func(t string, _ int) string { return strings.TrimSpace(t) }))
	return strings.Join(lo.Uniq(clean), ",")
}

// canPost reports whether author may publish a post of kind to club.
// Posts to every club are reserved for teachers; notices need a leader of that club.
func canPost(author *models.Actor, club string, kind models.PostType) bool {
	if author.IsTeacher() {
		return true
	}
	if club == models.AllClubs || !author.InClub(club) {
		return false
	}
	return kind != models.PostNotice || author.Leads(club)
}

// Create stores a post by author and announces it to everyone.
func (s *Service) Create(ctx context.Context, author *models.Actor, in Input) (models.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if in.Title == "" || in.Content == "" || in.Club == "" {
		return models.Post{}, fmt.Errorf("%w: title, content and club are required", ErrInvalidInput)
	}
	if in.PostType == "" {
		in.PostType = models.PostGeneral
	}
	if !in.PostType.Valid() {
		return models.Post{}, fmt.Errorf("%w: unknown post type %q", ErrInvalidInput, in.PostType)
	}
	if !canPost(author, in.Club, in.PostType) {
		return models.Post{}, ErrForbidden
	}

	paths := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		p, err := s.saveImage(img)
		if err != nil {
			s.removeImages(paths)
			return models.Post{}, err
		}
		paths = append(paths, p)
	}

	rec, err := s.store.Add(ctx, store.Posts, models.MustEncode(models.Post{
		Title:     in.Title,
		Content:   in.Content,
		Author:    author.Username,
		Club:      in.Club,
		ImagePath: strings.Join(paths, imageSeparator),
		Tags:      JoinTags(in.Tags),
		PostType:  in.PostType,
	}))
	if err != nil {
		s.removeImages(paths)
		return models.Post{}, fmt.Errorf("failed to create post: %w", err)
	}
	post, err := models.Decode[models.Post](rec)
	if err != nil {
		return models.Post{}, err
	}

	if s.notifier != nil {
		title := "새 게시글: " + post.Title
		message := author.Name + "님이 새 게시글을 등록했습니다."
		if _, err := s.notifier.Add(ctx, title, notification.TypeInfo, models.AllClubs, message); err != nil {
			log.Warn("failed to announce post", "post", post.ID, "error", err)
		}
	}
	return post, nil
}

// saveImage resizes an image to fit 800x600 and stores it as PNG.
// It returns the path relative to the data dir.
func (s *Service) saveImage(img Image) (string, error) {
	src, err := imaging.Decode(img.Data, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: cannot decode image %q: %v", ErrInvalidInput, img.Name, err)
	}
	b := src.Bounds()
	if b.Dx() > MaxImageWidth || b.Dy() > MaxImageHeight {
		src = imaging.Fit(src, MaxImageWidth, MaxImageHeight, imaging.Lanczos)
	}

	dir := filepath.Join(s.dataDir, UploadDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	name := uuid.NewString() + ".png"
	if err := imaging.Save(src, filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return filepath.ToSlash(filepath.Join(UploadDir, name)), nil
}

func (s *Service) removeImages(paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(filepath.Join(s.dataDir, filepath.FromSlash(p))); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove image", "path", p, "error", err)
		}
	}
}

// ImagePaths splits the stored image paths of a post.
func ImagePaths(p models.Post) []string {
	return lo.Compact(strings.Split(p.ImagePath, imageSeparator))
}

// Like adds one like and returns the new count.
func (s *Service) Like(ctx context.Context, actor *models.Actor, id int) (int, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return 0, err
	}
	likes := 0
	err := s.store.Mutate(ctx, store.Posts, func(t *store.Table) error {
		rec, ok := t.Find("id", strconv.Itoa(id))
		if !ok {
			return store.ErrNotFound
		}
		likes = rec.Int("likes") + 1
		rec["likes"] = strconv.Itoa(likes)
		return nil
	})
	return likes, err
}

// Comment adds a comment to a post and bumps its comment count.
func (s *Service) Comment(ctx context.Context, actor *models.Actor, postID int, text string) (models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, fmt.Errorf("%w: comment is empty", ErrInvalidInput)
	}
	if _, err := s.Get(ctx, actor, postID); err != nil {
		return models.Comment{}, err
	}

	rec, err := s.store.Add(ctx, store.Comments, models.MustEncode(models.Comment{
		PostID:  postID,
		Author:  actor.Username,
		Content: text,
	}))
	if err != nil {
		return models.Comment{}, fmt.Errorf("failed to add comment: %w", err)
	}
	err = s.store.Mutate(ctx, store.Posts, func(t *store.Table) error {
		if p, ok := t.Find("id", strconv.Itoa(postID)); ok {
			p["comments"] = strconv.Itoa(p.Int("comments") + 1)
		}
		return nil
	})
	if err != nil {
		return models.Comment{}, err
	}
	return models.Decode[models.Comment](rec)
}

// Comments returns the comments of a post, oldest first.
func (s *Service) Comments(ctx context.Context, actor *models.Actor, postID int) ([]models.Comment, error) {
	if _, err := s.Get(ctx, actor, postID); err != nil {
		return nil, err
	}
	t, err := s.store.Load(ctx, store.Comments)
	if err != nil {
		return nil, err
	}
	id := strconv.Itoa(postID)
	out := models.DecodeAll[models.Comment](t.Where(func(r store.Record) bool { return r["post_id"] == id }))
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedDate < out[j].CreatedDate })
	return out, nil
}

// Patch holds the editable post fields. Nil fields are left unchanged.
type Patch struct {
	Title    *string          `json:"title"`
	Content  *string          `json:"content"`
	Tags     []string         `json:"tags"`
	PostType *models.PostType `json:"postType"`
}

func canModify(actor *models.Actor, p models.Post) bool {
	return actor.IsTeacher() || (actor != nil && actor.Username == p.Author)
}

// Edit changes a post. Only teachers and the author may edit.
func (s *Service) Edit(ctx context.Context, actor *models.Actor, id int, patch Patch) (models.Post, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return models.Post{}, err
	}
	if !canModify(actor, p) {
		return models.Post{}, ErrForbidden
	}

	fields := store.Record{}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return models.Post{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		fields["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil {
		fields["content"] = strings.TrimSpace(*patch.Content)
	}
	if patch.Tags != nil {
		fields["tags"] = JoinTags(patch.Tags)
	}
	if patch.PostType != nil {
		if !patch.PostType.Valid() {
			return models.Post{}, fmt.Errorf("%w: unknown post type %q", ErrInvalidInput, *patch.PostType)
		}
		fields["post_type"] = string(*patch.PostType)
	}
	if len(fields) == 0 {
		return p, nil
	}
	if err := s.store.Update(ctx, store.Posts, strconv.Itoa(id), fields); err != nil {
		return models.Post{}, err
	}
	return s.Get(ctx, actor, id)
}

// Delete removes a post with its comments and images. Only teachers and the author may delete.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, id int) error {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if !canModify(actor, p) {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, store.Posts, strconv.Itoa(id)); err != nil {
		return err
	}

	postID := strconv.Itoa(id)
	err = s.store.Mutate(ctx, store.Comments, func(t *store.Table) error {
		t.Rows = lo.Reject(t.Rows, func(r store.Record, _ int) bool { return r["post_id"] == postID })
		return nil
	})
	if err != nil {
		log.Warn("failed to delete comments of post", "post", id, "error", err)
	}
	s.removeImages(ImagePaths(p))
	return nil
}

// Recent returns the newest posts visible to actor.
func (s *Service) Recent(ctx context.Context, actor *models.Actor, limit int) ([]models.Post, error) {
	posts, err := s.List(ctx, actor, Filter{Sort: SortNewest})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// ImageFile resolves a stored image path below the upload dir. It returns false
// for paths escaping it.
func (s *Service) ImageFile(rel string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if !strings.HasPrefix(clean, UploadDir+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(s.dataDir, clean), true
}

// Since returns the visible posts created at or after cutoff, newest first.
func (s *Service) Since(ctx context.Context, actor *models.Actor, cutoff time.Time) ([]models.Post, error) {
	posts, err := s.List(ctx, actor, Filter{})
	if err != nil {
		return nil, err
	}
	limit := cutoff.Format(models.DateTimeLayout)
	return lo.Filter(posts, func(p models.Post, _ int) bool { return p.CreatedDate >= limit }), nil
}
