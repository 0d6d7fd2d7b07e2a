// Package aws implements the AWS zombie-scan detector: a tagged Detector
// variant using aws-sdk-go-v2 credentials and the S3 service client directly,
// grounded on original_source/app/services/zombies/aws_provider/*.
package aws

import (
	"github.com/google/uuid"

	"github.com/cloudledger/jobcore/internal/zombiescan/zstypes"
)

// Credentials holds the connection-row fields the factory extracts for an
// AWS connection, mirroring factory.py's role_arn/external_id/aws_account_id
// extraction.
type Credentials struct {
	RoleARN      string
	ExternalID   string
	AccountID    string
	Region       string
	ConnectionID uuid.UUID
	Name         string
}

// Detector is the AWS zombie-resource detector.
type Detector struct {
	creds Credentials
}

// NewDetector constructs the AWS detector and its fixed plugin set.
func NewDetector(creds Credentials) *Detector {
	return &Detector{creds: creds}
}

func (d *Detector) ProviderName() string { return "aws" }

func (d *Detector) Plugins() []zstypes.Plugin {
	return []zstypes.Plugin{
		&unattachedVolumesPlugin{creds: d.creds},
		&idleS3BucketsPlugin{creds: d.creds},
		&unusedElasticIPsPlugin{creds: d.creds},
		&oldSnapshotsPlugin{creds: d.creds},
	}
}
