package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/esclipse/SynthraCloud/internal/llm"
	"github.com/esclipse/SynthraCloud/internal/screening"
)

// maxBodyBytes bounds request bodies. Editor content may carry inline images.
const maxBodyBytes = 20 << 20

// errorBody is the JSON shape of every failed response
type errorBody struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
	Hint    string      `json:"hint,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

func respondErrorDetails(w http.ResponseWriter, status int, message string, details interface{}) {
	respondJSON(w, status, errorBody{Error: message, Details: details})
}

// respondLLMError writes an LLM failure with its mapped status and hint
func respondLLMError(w http.ResponseWriter, message string, err error) {
	f := llm.Describe(err)
	respondJSON(w, f.Status, errorBody{Error: message, Details: f.Detail, Hint: f.Hint})
}

// respondScreeningError writes a screening failure. Unknown errors become 500.
func respondScreeningError(w http.ResponseWriter, err error) {
	var se *screening.Error
	if errors.As(err, &se) {
		respondErrorDetails(w, se.Status, se.Message, se.Details)
		return
	}
	respondErrorDetails(w, http.StatusInternalServerError, "Failed to process stock analysis", err.Error())
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}
