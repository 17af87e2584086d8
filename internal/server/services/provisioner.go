// Package services contains server-side business logic. This file implements
// Provisioner, which creates an account across the identity provider, the
// identifier allocator, the record store and the search index, undoing
// earlier steps when a later one fails.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/idalloc"
	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
	"github.com/dmitrijs2005/rollcall/internal/server/search"
)

// IdentityProvider owns login credentials.
type IdentityProvider interface {
	CreateCredential(ctx context.Context, email, password, displayName string) (*models.Credential, error)
	AssignRoleClaim(ctx context.Context, id, role string) error
	DeleteCredential(ctx context.Context, id string) error
}

// IdentifierAllocator issues human-facing identifiers.
type IdentifierAllocator interface {
	Allocate(ctx context.Context, namespace, prefix string) (idalloc.Identifier, error)
}

// RecordStore persists account records.
type RecordStore interface {
	Put(ctx context.Context, collection, key string, fields map[string]any) error
	Delete(ctx context.Context, collection, key string) error
}

// ProvisionOptions describes where and how an account of some kind is
// created.
type ProvisionOptions struct {
	// Namespace and Prefix select the identifier sequence.
	Namespace string
	Prefix    string
	// Collection receives the account record, keyed by credential id.
	Collection string
	// ExtraFields are merged into the record. They never override the
	// standard account fields.
	ExtraFields map[string]any
	// MirrorToIndex copies the record into IndexName.
	MirrorToIndex bool
	IndexName     string
	// AssignClaimIfRole grants the role claim when the requested role
	// equals it, e.g. "admin".
	AssignClaimIfRole string
}

func (o ProvisionOptions) validate() error {
	if o.Namespace == "" || o.Collection == "" {
		return fmt.Errorf("%w: provisioning profile needs a namespace and a collection", common.ErrInvalidArgument)
	}
	if o.MirrorToIndex && o.IndexName == "" {
		return fmt.Errorf("%w: provisioning profile mirrors without an index name", common.ErrInvalidArgument)
	}
	return nil
}

type ProvisionRequest struct {
	Email       string
	Password    string
	Role        string
	DisplayName string
}

func (r ProvisionRequest) validate() error {
	var missing []string
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	if r.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(r.Role) == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", common.ErrInvalidArgument, strings.Join(missing, ", "))
	}
	return nil
}

// Provisioning steps reported in PartialFailureError.
const (
	StepAllocate    = "allocate identifier"
	StepPersist     = "persist record"
	StepAssignClaim = "assign role claim"
)

// PartialFailureError reports a failure after the credential was created.
// It always matches common.ErrPartialFailure and the cause. When the
// compensating delete of the credential failed it also matches
// common.ErrOrphanedCredential and UID names the credential to remove.
type PartialFailureError struct {
	Step            string
	UID             string
	Cause           error
	CompensationErr error

	orphaned bool
}

func (e *PartialFailureError) Error() string {
	switch {
	case e.orphaned:
		return fmt.Sprintf("partial failure at %s: %v; orphaned credential %s: %v", e.Step, e.Cause, e.UID, e.CompensationErr)
	case e.CompensationErr != nil:
		return fmt.Sprintf("partial failure at %s: %v; credential removed, cleanup incomplete: %v", e.Step, e.Cause, e.CompensationErr)
	}
	return fmt.Sprintf("partial failure at %s: %v; credential removed", e.Step, e.Cause)
}

func (e *PartialFailureError) Unwrap() []error {
	errs := []error{common.ErrPartialFailure, e.Cause}
	if e.orphaned {
		errs = append(errs, common.ErrOrphanedCredential)
	}
	if e.CompensationErr != nil {
		errs = append(errs, e.CompensationErr)
	}
	return errs
}

// Orphaned reports whether the credential is still present.
func (e *PartialFailureError) Orphaned() bool { return e.orphaned }

const compensationTimeout = 10 * time.Second

type Provisioner struct {
	identity  IdentityProvider
	allocator IdentifierAllocator
	records   RecordStore
	index     search.Index
	profiles  map[string]ProvisionOptions
	now       func() time.Time
	logger    logging.Logger
}

// NewProvisioner wires the collaborators. index may be nil, in which case
// mirroring is skipped. profiles maps a role to its options.
func NewProvisioner(identity IdentityProvider, allocator IdentifierAllocator, records RecordStore,
	index search.Index, profiles map[string]ProvisionOptions, l logging.Logger) *Provisioner {
	if l == nil {
		l = logging.Nop()
	}
	return &Provisioner{
		identity:  identity,
		allocator: allocator,
		records:   records,
		index:     index,
		profiles:  profiles,
		now:       time.Now,
		logger:    l.With("module", "provisioner"),
	}
}

// Profile returns the options configured for role.
func (p *Provisioner) Profile(role string) (ProvisionOptions, bool) {
	o, ok := p.profiles[role]
	return o, ok
}

// ProvisionRole creates an account using the profile of req.Role.
func (p *Provisioner) ProvisionRole(ctx context.Context, req ProvisionRequest) (*models.Account, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	opts, ok := p.profiles[req.Role]
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrInvalidArgument, req.Role)
	}
	return p.Provision(ctx, req, opts)
}

// Provision creates the credential, allocates an identifier, writes the
// record, mirrors it and assigns the role claim, in that order. Failures
// before the credential exists are returned as they are. Later failures
// remove what was created and come back as *PartialFailureError. A
// failing mirror is only logged.
func (p *Provisioner) Provision(ctx context.Context, req ProvisionRequest, opts ProvisionOptions) (*models.Account, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cred, err := p.identity.CreateCredential(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		return nil, err
	}
	log := p.logger.With("uid", cred.ID, "namespace", opts.Namespace)

	id, err := p.allocator.Allocate(ctx, opts.Namespace, opts.Prefix)
	if err != nil {
		return nil, p.compensate(ctx, log, StepAllocate, cred.ID, opts, false, false, err)
	}
	log = log.With("userId", id.Value)

	record := p.record(cred, id, req, opts)
	if err := p.records.Put(ctx, opts.Collection, cred.ID, record); err != nil {
		// the identifier stays issued; gaps are tolerated
		return nil, p.compensate(ctx, log, StepPersist, cred.ID, opts, false, false, err)
	}

	mirrored := false
	if opts.MirrorToIndex && p.index != nil {
		if err := p.index.Upsert(ctx, opts.IndexName, cred.ID, indexFields(record)); err != nil {
			log.Warn(ctx, "search mirror failed", "index", opts.IndexName, "error", err)
		} else {
			mirrored = true
		}
	}

	if opts.AssignClaimIfRole != "" && req.Role == opts.AssignClaimIfRole {
		if err := p.identity.AssignRoleClaim(ctx, cred.ID, req.Role); err != nil {
			return nil, p.compensate(ctx, log, StepAssignClaim, cred.ID, opts, true, mirrored, err)
		}
	}

	log.Info(ctx, "account provisioned", "role", req.Role)
	return &models.Account{
		UID:        cred.ID,
		UserID:     id.Value,
		Email:      cred.Email,
		Role:       req.Role,
		Collection: opts.Collection,
	}, nil
}

func (p *Provisioner) record(cred *models.Credential, id idalloc.Identifier, req ProvisionRequest, opts ProvisionOptions) map[string]any {
	record := make(map[string]any, len(opts.ExtraFields)+7)
	for k, v := range opts.ExtraFields {
		record[k] = v
	}
	if cred.DisplayName != "" {
		record[models.FieldDisplayName] = cred.DisplayName
	}
	record[models.FieldUID] = cred.ID
	record[models.FieldEmail] = cred.Email
	record[models.FieldRole] = req.Role
	record[models.FieldUserID] = id.Value
	record[models.FieldIsProfileComplete] = false
	record[models.FieldCreatedAt] = p.now().UTC().Format(time.RFC3339Nano)
	return record
}

// indexFields is the searchable subset of a record.
func indexFields(record map[string]any) map[string]any {
	out := map[string]any{}
	for _, k := range []string{models.FieldEmail, models.FieldRole, models.FieldUserID, models.FieldIsProfileComplete, models.FieldDisplayName} {
		if v, ok := record[k]; ok {
			out[k] = v
		}
	}
	return out
}

// compensate undoes the steps done so far and builds the error to return.
// It runs on a context detached from the caller's cancellation.
func (p *Provisioner) compensate(ctx context.Context, log logging.Logger, step, uid string, opts ProvisionOptions,
	recordWritten, mirrored bool, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	log.Warn(ctx, "provisioning failed, compensating", "step", step, "error", cause)

	if mirrored {
		if err := p.index.Delete(cctx, opts.IndexName, uid); err != nil {
			log.Warn(ctx, "search mirror cleanup failed", "index", opts.IndexName, "error", err)
		}
	}

	var errs []error
	if recordWritten {
		if err := p.records.Delete(cctx, opts.Collection, uid); err != nil {
			errs = append(errs, fmt.Errorf("delete record: %w", err))
		}
	}
	orphaned := false
	if err := p.identity.DeleteCredential(cctx, uid); err != nil {
		orphaned = true
		errs = append(errs, fmt.Errorf("delete credential: %w", err))
	}

	pf := &PartialFailureError{Step: step, UID: uid, Cause: cause, CompensationErr: errors.Join(errs...), orphaned: orphaned}
	if pf.CompensationErr != nil {
		log.Error(ctx, "compensation failed", "step", step, "orphaned", orphaned, "error", pf.CompensationErr)
	}
	return pf
}
