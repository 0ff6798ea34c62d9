package github

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shurcooL/githubv4"

	"github.com/m-mizutani/hoist/pkg/domain/model"
	"github.com/m-mizutani/hoist/pkg/domain/types"
)

// releaseAssetQuery looks an asset up by name through GraphQL, which also
// returns assets the REST listing leaves out.
type releaseAssetQuery struct {
	Repository struct {
		Release *struct {
			ReleaseAssets struct {
				Nodes []struct {
					ID githubv4.ID
				}
			} `graphql:"releaseAssets(first: 1, name: $name)"`
		} `graphql:"release(tagName: $tag)"`
	} `graphql:"repository(owner: $owner, name: $repo)"`
}

// LocateAsset finds the asset called name on release, or returns nil
func (c *Client) LocateAsset(ctx context.Context, release *model.Release, name string) (*model.Asset, error) {
	var q releaseAssetQuery
	vars := map[string]any{
		"owner": githubv4.String(c.owner),
		"repo":  githubv4.String(c.repo),
		"tag":   githubv4.String(release.TagName),
		"name":  githubv4.String(name),
	}

	if err := c.gql.Query(ctx, &q, vars); err != nil {
		return nil, goerr.Wrap(err, "failed to query release asset",
			goerr.V("asset", name),
			goerr.V("tag", release.TagName),
			goerr.T(types.ErrTagTransient))
	}

	if q.Repository.Release == nil || len(q.Repository.Release.ReleaseAssets.Nodes) == 0 {
		return nil, nil
	}

	nodeID := fmt.Sprint(q.Repository.Release.ReleaseAssets.Nodes[0].ID)
	assetID, err := ReleaseAssetIDFromNodeID(nodeID)
	if err != nil {
		return nil, err
	}

	return c.getAsset(ctx, assetID)
}
