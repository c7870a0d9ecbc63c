package deepface

// VerifyRequest for POST /verify. Images are data URIs so the service never
// needs filesystem access.
type VerifyRequest struct {
	Img1             string `json:"img1"`
	Img2             string `json:"img2"`
	ModelName        string `json:"model_name,omitempty"`
	DetectorBackend  string `json:"detector_backend,omitempty"`
	DistanceMetric   string `json:"distance_metric,omitempty"`
	EnforceDetection bool   `json:"enforce_detection"`
	Align            bool   `json:"align"`
}

type errorResponse struct {
	Error string `json:"error"`
}
