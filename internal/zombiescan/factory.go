package zombiescan

import (
	"fmt"

	"github.com/cloudledger/jobcore/internal/zombiescan/providers/aws"
	"github.com/cloudledger/jobcore/internal/zombiescan/providers/azure"
	"github.com/cloudledger/jobcore/internal/zombiescan/providers/gcp"
)

// NewDetector dispatches on connection.Provider to build the matching
// Detector, grounded on original_source/app/services/zombies/factory.py's
// ZombieDetectorFactory.get_detector — here expressed as a tagged switch over
// a closed provider set instead of a string-matched class lookup.
func NewDetector(conn Connection) (Detector, error) {
	switch conn.Provider {
	case "aws":
		return aws.NewDetector(aws.Credentials{
			RoleARN:      conn.RoleARN,
			ExternalID:   conn.ExternalID,
			AccountID:    conn.AWSAccountID,
			Region:       conn.Region,
			ConnectionID: conn.ID,
			Name:         conn.Name,
		}), nil
	case "azure":
		return azure.NewDetector(azure.Credentials{
			TenantID:       conn.AzureTenantID,
			ClientID:       conn.ClientID,
			ClientSecret:   conn.ClientSecret,
			SubscriptionID: conn.SubscriptionID,
			ConnectionID:   conn.ID,
			Name:           conn.Name,
		}), nil
	case "gcp":
		return gcp.NewDetector(gcp.Credentials{
			ProjectID:          conn.ProjectID,
			ServiceAccountJSON: conn.ServiceAccountJSON,
			AuthMethod:         conn.AuthMethod,
			ConnectionID:       conn.ID,
			Name:               conn.Name,
		}), nil
	default:
		return nil, fmt.Errorf("zombiescan: unsupported provider %q", conn.Provider)
	}
}
