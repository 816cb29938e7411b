package sqlinline

const QSelectPlanForUser = `--sql 2d70b9ea-dc14-492b-817f-bc1ec7d3f16a
select p.id, p.name, p.total_concurrent_limit, p.image_concurrent_limit,
       p.video_concurrent_limit, p.queue_limit, p.created_at, p.updated_at
from subscription_plans p
join users u on u.plan_id = p.id
where u.id = $1;
`

const QSelectUserByID = `--sql 1b396214-7456-4a9d-b7ae-a26d1b0123fb
select id, email, name, plan_id, credit_balance, created_at, updated_at
from users
where id = $1;
`
