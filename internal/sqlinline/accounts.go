package sqlinline

const accountColumns = `id, name, provider, credentials, max_parallel_images, max_parallel_videos,
    max_slow_images, max_slow_videos, priority, is_active, created_at, updated_at`

// Ordering is part of the scheduling contract: priority descending with id
// ascending tie-break keeps account selection reproducible.
const QSelectActiveAccounts = `--sql 217b075d-e38a-4f1e-80b4-b806190d9c1a
select ` + accountColumns + `
from provider_accounts
where is_active
order by priority desc, id asc;
`

const QSelectAccountByID = `--sql 1b98f573-97fd-44d0-9862-af8e77cd255d
select ` + accountColumns + `
from provider_accounts
where id = $1;
`
