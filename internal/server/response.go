// internal/server/response.go
//
// 本檔負責統一 HTTP 回應格式。
// 透過集中管理 JSON 與錯誤輸出，確保整個 REST API 回應一致。
// 約定：
//   - 「成功回應」與「提款結果」（含被拒的 Outcome）一律使用 JSON（Content-Type: application/json）。
//   - 「錯誤回應」統一由 writeErr 輸出 {"error": "..."}，與被拒的 Outcome 本體明確區分：
//     前者代表操作失敗（帳戶不存在、儲存層錯誤），後者是正常的業務結果。
//
// 若要支援更完整的錯誤規範（如 RFC 7807 problem+json），只需在此檔擴充，handler 不必修改。
package server

import (
	"encoding/json"
	"net/http"
)

// writeJSON 統一輸出 JSON 回應。
// - code：HTTP 狀態碼（例如 200, 201；被拒的提款為 400 / 409）
// - v：可被 JSON 序列化的物件（map、struct、slice 皆可）
// 所有成功路徑與提款結果皆透過此函式回傳，以維持一致格式。
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr 統一輸出錯誤回應。
// - err.Error()：放入 {"error": "..."} 的訊息欄位
// - code：HTTP 狀態碼（400、404、409、500、503 等，通常由 statusFor 決定）
func writeErr(w http.ResponseWriter, err error, code int) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
