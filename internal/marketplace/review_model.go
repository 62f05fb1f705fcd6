package marketplace

// CreateReviewRequest represents the request payload for creating a review
type CreateReviewRequest struct {
	GigID   string `json:"gig_id" validate:"required"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// UpdateReviewRequest replaces rating and comment of an existing review
type UpdateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// ReviewResponse is returned after a review write
type ReviewResponse struct {
	Review *Review       `json:"review,omitempty"`
	Rating RatingSummary `json:"rating"`
}

// GigReviewsResponse lists a gig's reviews with its rating summary
type GigReviewsResponse struct {
	Rating  RatingSummary `json:"rating"`
	Reviews []Review      `json:"reviews"`
}
