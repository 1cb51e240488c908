package dto

type UpdateBioRequest struct {
	Bio string `json:"bio"`
}
