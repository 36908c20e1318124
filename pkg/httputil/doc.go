// Package httputil provides HTTP helpers shared by the API handlers.
//
// Responses are JSON except for file downloads:
//
//	httputil.WriteSuccess(w, batches)
//	httputil.WriteCreated(w, result)
//	httputil.WriteAttachment(w, "application/xml", "sepa-B202501-1A2B3C4D.xml", body)
//
// Errors share one body shape, {"error": ..., "code": ..., "details": {...}}:
//
//	httputil.WriteBadRequest(w, "billing_month must be the first day of a month")
//	httputil.WriteDetailedError(w, http.StatusConflict, httputil.ErrorResponse{...})
//
// Request bodies are decoded strictly and validated with struct tags:
//
//	var req CreateBatchRequest
//	if !httputil.DecodeAndValidate(w, r, &req) {
//		return // 400 already written
//	}
//
// Path parameters are read from gorilla/mux:
//
//	batchID, ok := httputil.ParsePathUUIDOrError(w, r, "batchId")
//
// The middleware set covers request ids with a request scoped logger, access logging,
// panic recovery, content type enforcement and body size limits. Compose them with Chain.
package httputil
