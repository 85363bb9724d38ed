package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fairlens/escrow-engine/internal/escrow"
	"github.com/fairlens/escrow-engine/internal/facade"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// Contract Handlers

// deployContractHandler creates and funds a new escrow contract
func (s *HTTPServer) deployContractHandler(w http.ResponseWriter, r *http.Request) {
	var req facade.DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeInvalidArgument, "Invalid request body", err.Error()))
		return
	}

	contract, err := s.facade.DeployContract(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, contract)
}

// listContractsHandler lists all contracts
func (s *HTTPServer) listContractsHandler(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.query.GetContracts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"contracts": contracts,
		"total":     len(contracts),
	})
}

// getContractHandler gets a specific contract
func (s *HTTPServer) getContractHandler(w http.ResponseWriter, r *http.Request) {
	contract, err := s.query.GetContract(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, contract)
}

// listEventsHandler lists a contract's audit events
func (s *HTTPServer) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	events, err := s.query.GetEvents(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}

// syncContractHandler refreshes the local projection from the ledger
func (s *HTTPServer) syncContractHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.facade.SyncContract(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Contract synchronized",
		"contract_id": id,
	})
}

// Milestone Handlers

// listMilestonesHandler lists a contract's milestones
func (s *HTTPServer) listMilestonesHandler(w http.ResponseWriter, r *http.Request) {
	milestones, err := s.query.GetMilestones(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"milestones": milestones,
		"total":      len(milestones),
	})
}

// getMilestoneHandler gets one milestone
func (s *HTTPServer) getMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := parseIndex(vars["index"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	milestone, err := s.query.GetMilestone(r.Context(), vars["id"], index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, milestone)
}

// addMilestoneHandler adds a milestone to a contract
func (s *HTTPServer) addMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index   uint64 `json:"index"`
		Amount  uint64 `json:"amount"`
		DueDate int64  `json:"due_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeInvalidArgument, "Invalid request body", err.Error()))
		return
	}

	s.performOperation(w, r, escrow.Operation{
		Kind:    escrow.OpAddMilestone,
		Index:   req.Index,
		Amount:  req.Amount,
		DueDate: req.DueDate,
	})
}

// submitProofHandler submits completion evidence for a milestone
func (s *HTTPServer) submitProofHandler(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(mux.Vars(r)["index"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req struct {
		ProofHash string `json:"proof_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeInvalidArgument, "Invalid request body", err.Error()))
		return
	}

	s.performOperation(w, r, escrow.Operation{
		Kind:      escrow.OpSubmitProof,
		Index:     index,
		ProofHash: req.ProofHash,
	})
}

// verifyMilestoneHandler records the verifier's attestation for a milestone
func (s *HTTPServer) verifyMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(mux.Vars(r)["index"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req struct {
		Signature string `json:"signature"` // base64
		Message   string `json:"message"`   // base64
		ProofHash string `json:"proof_hash,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeInvalidArgument, "Invalid request body", err.Error()))
		return
	}

	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeInvalidArgument, "Signature must be base64", err.Error()))
		return
	}
	message, err := base64.StdEncoding.DecodeString(req.Message)
	if err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeInvalidArgument, "Message must be base64", err.Error()))
		return
	}

	s.performOperation(w, r, escrow.Operation{
		Kind:      escrow.OpVerifyMilestone,
		Index:     index,
		Signature: signature,
		Message:   message,
		ProofHash: req.ProofHash,
	})
}

// releasePaymentHandler releases escrowed funds for a verified milestone
func (s *HTTPServer) releasePaymentHandler(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(mux.Vars(r)["index"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.performOperation(w, r, escrow.Operation{
		Kind:  escrow.OpReleasePayment,
		Index: index,
	})
}

// Administration Handlers

// pauseContractHandler pauses a contract
func (s *HTTPServer) pauseContractHandler(w http.ResponseWriter, r *http.Request) {
	s.performOperation(w, r, escrow.Operation{Kind: escrow.OpEmergencyPause})
}

// resumeContractHandler resumes a paused contract
func (s *HTTPServer) resumeContractHandler(w http.ResponseWriter, r *http.Request) {
	s.performOperation(w, r, escrow.Operation{Kind: escrow.OpResumeContract})
}

// terminateContractHandler terminates a contract and refunds the escrow
func (s *HTTPServer) terminateContractHandler(w http.ResponseWriter, r *http.Request) {
	s.performOperation(w, r, escrow.Operation{Kind: escrow.OpTerminateContract})
}

// updateVerifierHandler rotates the contract's verifier
func (s *HTTPServer) updateVerifierHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Verifier string `json:"verifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeInvalidArgument, "Invalid request body", err.Error()))
		return
	}

	s.performOperation(w, r, escrow.Operation{
		Kind:        escrow.OpUpdateVerifier,
		NewVerifier: req.Verifier,
	})
}

// Transaction Handlers

// getTransactionHandler returns one submission record
func (s *HTTPServer) getTransactionHandler(w http.ResponseWriter, r *http.Request) {
	record, err := s.query.GetTransaction(r.Context(), mux.Vars(r)["txId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// resolvePendingHandler re-polls undetermined transactions
func (s *HTTPServer) resolvePendingHandler(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.facade.ResolvePendingTransactions(r.Context(), 100)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"resolved": resolved,
	})
}

// performOperation runs the operation pipeline and writes the outcome. A
// pending outcome answers 202: the transaction may still confirm later.
func (s *HTTPServer) performOperation(w http.ResponseWriter, r *http.Request, op escrow.Operation) {
	result, err := s.facade.PerformOperation(r.Context(), mux.Vars(r)["id"], op)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	switch result.Status {
	case facade.ResultPending:
		status = http.StatusAccepted
	case facade.ResultRejected:
		status = http.StatusUnprocessableEntity
	case facade.ResultCancelled:
		status = http.StatusConflict
	}

	s.writeJSON(w, status, result)
}

func parseIndex(raw string) (uint64, error) {
	index, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeInvalidArgument, "Milestone index must be a non-negative integer", raw)
	}
	return index, nil
}
