package sdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
)

// Recipe is a saved recipe.
type Recipe struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Difficulty  string   `json:"difficulty"` // Beginner, Intermediate or Advanced
	CookTime    string   `json:"cookTime"`
	Rating      float64  `json:"rating"`
	Image       string   `json:"image"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
}

// RecipeInput is a recipe to save; the server assigns the ID.
type RecipeInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Difficulty  string   `json:"difficulty"`
	CookTime    string   `json:"cookTime"`
	Rating      float64  `json:"rating"`
	Image       string   `json:"image"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
}

// GeneratedRecipe is the text of a generated recipe.
type GeneratedRecipe struct {
	Recipe string `json:"recipe"`
}

// ImageAnalysis describes an uploaded dish photo.
type ImageAnalysis struct {
	Analysis string `json:"analysis"`
	ImageURL string `json:"image_url"`
}

// DishImage points at a generated dish picture.
type DishImage struct {
	ImageURL string `json:"image_url"`
}

// Profile is the signed-in user's profile.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Email *string `json:"email,omitempty"`
	Name  *string `json:"name,omitempty"`
}

// HealthStatus is the body of /health. Status is "unreachable" when the call failed.
type HealthStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

var allowedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

type dishRequest struct {
	DishName string `json:"dish_name"`
}

// GenerateRecipe asks the service to write a recipe for dishName.
func (c *Client) GenerateRecipe(ctx context.Context, dishName string) (*GeneratedRecipe, error) {
	dishName = strings.TrimSpace(dishName)
	if dishName == "" {
		return nil, validationError("Dish name is required")
	}
	var out GeneratedRecipe
	if err := c.Do(ctx, Envelope{Method: http.MethodPost, Path: "/api/generate-recipe", Body: dishRequest{DishName: dishName}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateDishImage asks the service to render a picture of dishName.
func (c *Client) GenerateDishImage(ctx context.Context, dishName string) (*DishImage, error) {
	dishName = strings.TrimSpace(dishName)
	if dishName == "" {
		return nil, validationError("Dish name is required")
	}
	var out DishImage
	if err := c.Do(ctx, Envelope{Method: http.MethodPost, Path: "/api/generate-dish-image", Body: dishRequest{DishName: dishName}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeImage uploads a dish photo for analysis. Only png, jpg, jpeg and gif are accepted.
func (c *Client) AnalyzeImage(ctx context.Context, filename string, content io.Reader) (*ImageAnalysis, error) {
	if filename == "" || content == nil {
		return nil, validationError("No selected file")
	}
	if !allowedImageExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil, validationError("File type not allowed")
	}
	var out ImageAnalysis
	env := Envelope{
		Method: http.MethodPost,
		Path:   "/api/analyze-image",
		File:   &FileUpload{Field: "file", Filename: filepath.Base(filename), Content: content},
	}
	if err := c.Do(ctx, env, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProfile fetches the signed-in user's profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.Do(ctx, Envelope{Method: http.MethodGet, Path: "/protected/profile"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateProfile stores a profile for the signed-in user.
func (c *Client) CreateProfile(ctx context.Context, profile Profile) (*Profile, error) {
	var out Profile
	if err := c.Do(ctx, Envelope{Method: http.MethodPost, Path: "/protected/profile", Body: profile}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile changes the given profile fields.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*Profile, error) {
	var out Profile
	if err := c.Do(ctx, Envelope{Method: http.MethodPut, Path: "/protected/profile", Body: update}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveRecipe stores a recipe and returns it with its assigned ID.
func (c *Client) SaveRecipe(ctx context.Context, recipe RecipeInput) (*Recipe, error) {
	if strings.TrimSpace(recipe.Title) == "" {
		return nil, validationError("Recipe title is required")
	}
	var out Recipe
	if err := c.Do(ctx, Envelope{Method: http.MethodPost, Path: "/api/recipes", Body: recipe}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRecipes returns the signed-in user's recipes.
func (c *Client) ListRecipes(ctx context.Context) ([]Recipe, error) {
	var out []Recipe
	if err := c.Do(ctx, Envelope{Method: http.MethodGet, Path: "/api/recipes"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRecipe fetches one recipe by ID.
func (c *Client) GetRecipe(ctx context.Context, id string) (*Recipe, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationError("Recipe ID is required")
	}
	if id == "." || id == ".." {
		return nil, validationError("Invalid recipe ID")
	}
	var out Recipe
	if err := c.Do(ctx, Envelope{Method: http.MethodGet, Path: "/api/recipes/" + url.PathEscape(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports service liveness. It never returns an error: an unreachable or
// misbehaving service yields Status "unreachable".
func (c *Client) Health(ctx context.Context) HealthStatus {
	body, err := c.roundTrip(ctx, Envelope{Method: http.MethodGet, Path: "/health", Public: true})
	if err != nil {
		return HealthStatus{Status: "unreachable", Error: err.Error()}
	}
	var out HealthStatus
	if err := json.Unmarshal(body, &out); err != nil || out.Status == "" {
		return HealthStatus{Status: "unreachable", Error: DefaultErrorMessage}
	}
	return out
}

// ImageURL resolves an image path returned by the service into an absolute URL.
func (c *Client) ImageURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.baseURL.String(), "/") + "/" + strings.TrimLeft(path, "/")
}
