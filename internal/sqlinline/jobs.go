package sqlinline

const QInsertJob = `--sql 65b325c7-1ee8-4c13-b670-64b354a85e97
insert into jobs (
    id, user_id, type, model_id, status, credits_cost, prompt, source_url,
    width, height, duration_seconds, slow
)
values ($1, $2, $3, $4, 'pending', $5, $6, $7, $8, $9, $10, $11);
`

const jobColumns = `id, user_id, type, model_id, status, credits_cost, credits_refunded,
    provider_job_id, account_id, output_url, error_message, prompt, source_url,
    width, height, duration_seconds, slow, attempts, created_at, started_at, completed_at`

const QSelectJobByID = `--sql 1f348e46-9473-45ab-9538-41a760441745
select ` + jobColumns + `
from jobs
where id = $1;
`

const QSelectJobForUser = `--sql 9e636515-4be6-448e-af0d-2072766f993e
select ` + jobColumns + `
from jobs
where id = $1 and user_id = $2;
`

const QCountActiveByUser = `--sql 4621f431-d2d1-43e5-b1f3-92d50836a19f
select
    count(*) as total,
    count(*) filter (where type in ('text_to_image', 'image_to_image')) as images,
    count(*) filter (where type in ('text_to_video', 'image_to_video')) as videos
from jobs
where user_id = $1 and status = 'processing';
`

const QCountPendingByUser = `--sql fa5553e4-0513-404b-8f16-9749504ef43a
select count(*)
from jobs
where user_id = $1 and status = 'pending';
`

const QSelectPendingByUser = `--sql 18ff9cd5-e2f7-480d-9ab4-494619e26936
select ` + jobColumns + `
from jobs
where user_id = $1 and status = 'pending'
order by created_at asc;
`

const QSelectPollable = `--sql 31261b44-3d87-4354-b373-b44295e7fbc5
select ` + jobColumns + `
from jobs
where status in ('pending', 'processing') and provider_job_id is not null
order by created_at asc;
`

const QSelectStalePending = `--sql e29562e6-4214-452c-915b-6c6e653558c4
select ` + jobColumns + `
from jobs
where status = 'pending' and created_at < $1
order by created_at asc;
`

const QAccountUsage = `--sql 434dad27-0626-45d3-837d-c96e95ffb4a5
select
    count(*) filter (where type in ('text_to_image', 'image_to_image')) as images,
    count(*) filter (where type in ('text_to_video', 'image_to_video')) as videos,
    count(*) filter (where slow and type in ('text_to_image', 'image_to_image')) as slow_images,
    count(*) filter (where slow and type in ('text_to_video', 'image_to_video')) as slow_videos
from jobs
where account_id = $1 and status = 'processing';
`

// QLockJobOwner is the first statement of the reserve transaction. It locks
// the owner's users row so that racing reservations for the same user
// serialize; the usage recount runs as a separate statement after the lock
// is held, so it sees reservations committed while this one waited.
const QLockJobOwner = `--sql bdbbe6f1-f61e-494c-b656-e962531a41d4
select j.user_id, j.type
from jobs j
join users u on u.id = j.user_id
where j.id = $1 and j.status = 'pending'
for update of u;
`

// QMarkProcessing flips pending to processing with the provider handle. Only
// valid inside the reserve transaction, after the owner lock and the recount.
const QMarkProcessing = `--sql d5978831-ca70-4706-ba04-686c98cd2afc
update jobs
set status = 'processing',
    account_id = $2,
    provider_job_id = $3,
    started_at = now()
where id = $1 and status = 'pending';
`

const QMarkCompleted = `--sql 99b8e30e-0ec2-4c38-a4f1-724cdd10886b
update jobs
set status = 'completed', output_url = $2, completed_at = now()
where id = $1 and status = 'processing'
returning id;
`

const QMarkFailed = `--sql e4e2e44d-d629-4d6e-bf0d-5f81dcbdf504
update jobs
set status = 'failed', error_message = $2, completed_at = now()
where id = $1 and status in ('pending', 'processing')
returning id;
`

const QMarkCancelled = `--sql f02529e9-cae5-421c-b38b-9ef0dc16ce54
update jobs
set status = 'cancelled', completed_at = now()
where id = $1 and status in ('pending', 'processing')
returning id;
`

const QIncrementAttempts = `--sql dc8d174a-caf2-471c-ab97-3c0ba3322aba
update jobs
set attempts = attempts + 1
where id = $1
returning attempts;
`

const QDeleteTerminalBefore = `--sql f9bf2826-8c00-46f4-bbb3-5ea7bfa21a34
delete from jobs
where status in ('completed', 'failed', 'cancelled')
  and completed_at is not null
  and completed_at < $1;
`
