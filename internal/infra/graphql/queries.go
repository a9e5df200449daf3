package graphql

// DefaultIngestedAtMin is the earliest ingestion time (unix seconds) the
// feed query considers.
const DefaultIngestedAtMin int64 = 1696107600

const transactionsQuery = `query (
  $entityId: String!,
  $limit: Int!,
  $sortOrder: SortOrder!,
  $cursor: String,
  $ingestedAtMin: Int!,
  $tags: [TagFilter!]
) {
  transactions(
    sort: $sortOrder
    first: $limit
    after: $cursor
    recipients: [$entityId]
    tags: $tags
    ingested_at: {min: $ingestedAtMin}
  ) {
    edges {
      cursor
      node {
        id
        ingested_at
        recipient
        block {
          id
          timestamp
          height
          previous
        }
        tags {
          name
          value
        }
        data {
          size
          type
        }
        owner {
          address
          key
        }
      }
    }
  }
}`

const transactionQuery = `query ($id: ID!) {
  transaction(id: $id) {
    id
    anchor
    signature
    recipient
    ingested_at
    owner {
      address
      key
    }
    fee {
      winston
      ar
    }
    quantity {
      winston
      ar
    }
    data {
      size
      type
    }
    tags {
      name
      value
    }
    block {
      id
      timestamp
      height
      previous
    }
    parent {
      id
    }
    bundledIn {
      id
    }
  }
}`
