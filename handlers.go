package postgate

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/postgate/frontmatter"
)

const dateLayout = "2006-01-02"

func (a *App) handleListPosts(c echo.Context) error {
	posts := a.aggregatePosts(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{"posts": posts})
}

func (a *App) handleGetPost(c echo.Context) error {
	category, filename, err := a.postParams(c)
	if err != nil {
		return err
	}
	f, err := a.Content.ReadFile(c.Request().Context(), postPath(category, filename))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"post": newPost(category, filename, f.SHA, f.Content),
	})
}

func (a *App) handleCreatePost(c echo.Context) error {
	var req postRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	category := strings.TrimSpace(req.Category)
	if !a.Config.Categories.Contains(category) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown category")
	}

	raw := req.Content
	filename := strings.TrimSpace(req.Filename)
	if req.Title != "" {
		date, err := a.requestDate(req.Date, "")
		if err != nil {
			return err
		}
		raw = frontmatter.Encode(frontmatter.Fields{
			Title:    req.Title,
			Date:     date,
			Category: category,
			Content:  req.Content,
		})
		if filename == "" {
			filename = postFilename(date, req.Title)
		}
	}
	if filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename is required")
	}
	if err := validateFilename(filename); err != nil {
		return err
	}

	res, err := a.Content.WriteFile(c.Request().Context(), postPath(category, filename),
		[]byte(raw), "Create post: "+filename, "")
	if err != nil {
		return err
	}
	a.Log.Info().Str("email", AuthEmail(c)).Str("category", category).Str("filename", filename).Msg("post created")

	sha := ""
	if res.Content != nil {
		sha = res.Content.SHA
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"post":    newPost(category, filename, sha, []byte(raw)),
		"file":    res,
	})
}

func (a *App) handleUpdatePost(c echo.Context) error {
	category, filename, err := a.postParams(c)
	if err != nil {
		return err
	}
	var req postRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}

	raw := req.Content
	if req.Title != "" {
		fallbackDate, _ := frontmatter.Fallback(filename)
		date, err := a.requestDate(req.Date, fallbackDate)
		if err != nil {
			return err
		}
		raw = frontmatter.Encode(frontmatter.Fields{
			Title:    req.Title,
			Date:     date,
			Category: category,
			Content:  req.Content,
		})
	}

	res, err := a.Content.UpdateFile(c.Request().Context(), postPath(category, filename),
		[]byte(raw), "Update post: "+filename)
	if err != nil {
		return err
	}
	a.Log.Info().Str("email", AuthEmail(c)).Str("category", category).Str("filename", filename).Msg("post updated")

	sha := ""
	if res.Content != nil {
		sha = res.Content.SHA
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"post":    newPost(category, filename, sha, []byte(raw)),
		"file":    res,
	})
}

func (a *App) handleDeletePost(c echo.Context) error {
	category, filename, err := a.postParams(c)
	if err != nil {
		return err
	}
	if err := a.Content.RemoveFile(c.Request().Context(), postPath(category, filename),
		"Delete post: "+filename); err != nil {
		return err
	}
	a.Log.Info().Str("email", AuthEmail(c)).Str("category", category).Str("filename", filename).Msg("post deleted")
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// handleInvalidPostPath answers /posts/ paths that are not exactly
// /posts/{category}/{filename}.
func handleInvalidPostPath(c echo.Context) error {
	return echo.NewHTTPError(http.StatusBadRequest, "Invalid path")
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// requirePostPath rejects /posts/{category}/{filename} requests whose
// params are not single path segments. It runs ahead of requireAuth, so a
// malformed path is a 400 whether or not the caller is signed in.
func requirePostPath(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, _, err := postPathParams(c); err != nil {
			return err
		}
		return next(c)
	}
}

// postParams returns the category and filename route params of a
// well-formed post path with a configured category.
func (a *App) postParams(c echo.Context) (string, string, error) {
	category, filename, err := postPathParams(c)
	if err != nil {
		return "", "", err
	}
	if !a.Config.Categories.Contains(category) {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "unknown category")
	}
	return category, filename, nil
}

// postPathParams checks the shape of the route params. Echo binds the last
// param across any remaining segments, so /posts/a/b/c arrives here with
// filename "b/c".
func postPathParams(c echo.Context) (string, string, error) {
	category, err := pathParam(c, "category")
	if err != nil || !isPathSegment(category) {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "Invalid path")
	}
	filename, err := pathParam(c, "filename")
	if err != nil || !isPathSegment(filename) {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "Invalid path")
	}
	return category, filename, nil
}

// pathParam returns a route param unescaped. Echo routes on URL.RawPath
// when the request has one and leaves params escaped; otherwise they are
// already decoded and must not be unescaped again.
func pathParam(c echo.Context, name string) (string, error) {
	v := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func isPathSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\")
}

// requestDate returns value when it is a valid date, fallback when value
// is empty, and today's UTC date when both are empty.
func (a *App) requestDate(value, fallback string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	if value == "" {
		return a.now().UTC().Format(dateLayout), nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid date, use YYYY-MM-DD")
	}
	return value, nil
}

func validateFilename(filename string) error {
	if strings.ContainsAny(filename, "/\\") || strings.HasPrefix(filename, ".") {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filename")
	}
	if !strings.HasSuffix(filename, ".md") {
		return echo.NewHTTPError(http.StatusBadRequest, "filename must end in .md")
	}
	return nil
}

// postFilename builds "{date}-{slug}.md", or "{date}.md" when the title
// has no sluggable characters.
func postFilename(date, title string) string {
	if slug := Slugify(title); slug != "" {
		return date + "-" + slug + ".md"
	}
	return date + ".md"
}

func postPath(category, filename string) string {
	return path.Join("posts", category, filename)
}

// decodeJSON reads a JSON request body. Unlike c.Bind it does not depend
// on the Content-Type header, which some clients omit.
func decodeJSON(c echo.Context, v any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	return nil
}
